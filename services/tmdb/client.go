package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/semaphore"
)

// Minimal TMDB v3 client (search and detail endpoints we need)

const defaultBaseURL = "https://api.themoviedb.org/3"

// DefaultMaxInFlight is the process-wide ceiling on concurrently
// outstanding TMDB requests. Shared across every request being served, as
// a politeness control against TMDB's rate limits.
const DefaultMaxInFlight = 5

// MediaKind selects which detail endpoint a credit fetch hits.
type MediaKind string

const (
	MediaMovie MediaKind = "movie"
	MediaTV    MediaKind = "tv"
)

// LookupError covers transport failures, non-2xx responses, and malformed
// payloads. Callers treat it as "no results", never as a batch failure.
type LookupError struct {
	URL    string
	Status int
	Err    error
}

func (e *LookupError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tmdb get %s failed: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("tmdb get %s failed: %v", e.URL, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client

	// Admission ticket for every outbound call, regardless of call type.
	// Injected so tests can use a weight-1 semaphore to assert queueing.
	sem *semaphore.Weighted
}

func NewClient(apiKey string, httpc *http.Client, sem *semaphore.Weighted) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if sem == nil {
		sem = semaphore.NewWeighted(DefaultMaxInFlight)
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpc:   httpc,
		sem:     sem,
	}
}

// SearchMovieIDs queries TMDB movie search filtered server-side by year,
// then keeps only results whose title matches the query exactly
// (case-insensitive, trimmed). This guards against substring neighbours
// ("Alien" must not pick up "Aliens"). At most the first exact match is
// returned; resolution is first-exact-hit-wins, not best-match.
func (c *Client) SearchMovieIDs(ctx context.Context, title, year string) ([]int64, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", title)
	// Year goes through verbatim, empty or not; TMDB ignores an empty value.
	q.Set("year", year)

	var resp struct {
		Results []struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := c.doGET(ctx, "/search/movie", q, &resp); err != nil {
		return nil, err
	}

	want := strings.TrimSpace(title)
	for _, r := range resp.Results {
		if strings.EqualFold(strings.TrimSpace(r.Title), want) {
			return []int64{r.ID}, nil
		}
	}
	return nil, nil
}

// SearchTVIDs queries TMDB TV search. TV search is a lower-confidence
// tier, so no exact-title filter is applied; at most the first result is
// returned.
func (c *Client) SearchTVIDs(ctx context.Context, title, year string) ([]int64, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", title)
	if strings.TrimSpace(year) != "" {
		q.Set("first_air_date_year", year)
	}

	var resp struct {
		Results []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"results"`
	}
	if err := c.doGET(ctx, "/search/tv", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return []int64{resp.Results[0].ID}, nil
}

// FetchDirectors fetches one detail record with both credit blocks
// appended and extracts every crew member credited as Director. Movies
// carry a flat crew list with a single job field; TV carries an aggregate
// crew list where each member holds per-episode job records (with a
// single-job compatibility field on older records). Both shapes are
// checked regardless of kind, and names are deduplicated per fetch.
func (c *Client) FetchDirectors(ctx context.Context, id int64, kind MediaKind) ([]string, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("append_to_response", "credits,aggregate_credits")

	var resp struct {
		Credits struct {
			Crew []struct {
				Name string `json:"name"`
				Job  string `json:"job"`
			} `json:"crew"`
		} `json:"credits"`
		AggregateCredits struct {
			Crew []struct {
				Name string `json:"name"`
				Job  string `json:"job"`
				Jobs []struct {
					Job string `json:"job"`
				} `json:"jobs"`
			} `json:"crew"`
		} `json:"aggregate_credits"`
	}
	path := fmt.Sprintf("/%s/%d", kind, id)
	if err := c.doGET(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, member := range resp.Credits.Crew {
		if member.Job == "Director" {
			add(member.Name)
		}
	}
	for _, member := range resp.AggregateCredits.Crew {
		if member.Job == "Director" {
			add(member.Name)
			continue
		}
		for _, j := range member.Jobs {
			if j.Job == "Director" {
				add(member.Name)
				break
			}
		}
	}
	return names, nil
}

// doGET acquires an admission ticket, issues the request with bounded
// retries on transient failures (network errors, 429, 5xx), and decodes
// the JSON body into v. Non-transient failures and exhausted retries come
// back as *LookupError.
func (c *Client) doGET(ctx context.Context, path string, q url.Values, v any) error {
	u := c.baseURL + path + "?" + q.Encode()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return &LookupError{URL: u, Err: err}
	}
	defer c.sem.Release(1)

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				statusErr := &LookupError{URL: u, Status: resp.StatusCode}
				if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
					return statusErr
				}
				return retry.Unrecoverable(statusErr)
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(&LookupError{URL: u, Err: err})
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return nil
	}
	var le *LookupError
	if errors.As(err, &le) {
		return le
	}
	return &LookupError{URL: u, Err: err}
}
