package resolver

import (
	"context"
	"log"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"auteur/models"
	"auteur/services/tmdb"
)

// DefaultCacheSize bounds the memo cache. A typical export has a few
// thousand distinct title-year pairs, so the default never evicts within
// one upload.
const DefaultCacheSize = 4096

// metadataClient is the slice of the TMDB client the resolver needs.
type metadataClient interface {
	SearchMovieIDs(ctx context.Context, title, year string) ([]int64, error)
	SearchTVIDs(ctx context.Context, title, year string) ([]int64, error)
	FetchDirectors(ctx context.Context, id int64, kind tmdb.MediaKind) ([]string, error)
}

var _ metadataClient = (*tmdb.Client)(nil)

// Resolver turns a (title, year) pair into a deduplicated set of director
// names via a two-tier TMDB lookup, memoized for the life of the process.
// The memo cache and the client's limiter are the only state shared across
// requests.
type Resolver struct {
	client metadataClient
	cache  *lru.Cache[string, models.Resolution]

	// In-flight deduplication: concurrent resolves of the same key share
	// one lookup, so racing writers cannot issue duplicate external calls.
	inflightMu sync.Mutex
	inflight   map[string]*inflightResolution
}

type inflightResolution struct {
	wg  sync.WaitGroup
	res models.Resolution
}

func New(client metadataClient, cacheSize int) *Resolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, models.Resolution](cacheSize)
	return &Resolver{
		client:   client,
		cache:    cache,
		inflight: make(map[string]*inflightResolution),
	}
}

// Resolve returns every director credited for the given title and year.
// Both lookup tiers always run and their results are unioned: a title that
// exists as both a movie and a TV series accrues directors from both.
// An empty outcome (including a failed one) is cached and never
// re-attempted within the process.
func (r *Resolver) Resolve(ctx context.Context, title, year string) models.Resolution {
	key := title + "-" + year

	if res, ok := r.cache.Get(key); ok {
		return res
	}

	r.inflightMu.Lock()
	if existing, ok := r.inflight[key]; ok {
		r.inflightMu.Unlock()
		existing.wg.Wait()
		return existing.res
	}
	// Another caller may have finished between the cache check and taking
	// the lock.
	if res, ok := r.cache.Get(key); ok {
		r.inflightMu.Unlock()
		return res
	}
	entry := &inflightResolution{}
	entry.wg.Add(1)
	r.inflight[key] = entry
	r.inflightMu.Unlock()

	entry.res = r.lookup(ctx, title, year)
	r.cache.Add(key, entry.res)

	r.inflightMu.Lock()
	delete(r.inflight, key)
	r.inflightMu.Unlock()
	entry.wg.Done()

	return entry.res
}

func (r *Resolver) lookup(ctx context.Context, title, year string) models.Resolution {
	seen := make(map[string]struct{})
	var directors []string
	add := func(names []string) {
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			directors = append(directors, name)
		}
	}

	okTiers := 0

	// Movie tier: exact-title search, at most one candidate by
	// construction of the client.
	if ids, err := r.client.SearchMovieIDs(ctx, title, year); err != nil {
		log.Printf("[resolver] movie search failed title=%q year=%q err=%v", title, year, err)
	} else {
		okTiers++
		for _, id := range ids {
			names, err := r.client.FetchDirectors(ctx, id, tmdb.MediaMovie)
			if err != nil {
				log.Printf("[resolver] movie credits fetch failed title=%q id=%d err=%v", title, id, err)
				continue
			}
			add(names)
		}
	}

	// TV tier always runs too; this is a union, not a fallback.
	if ids, err := r.client.SearchTVIDs(ctx, title, year); err != nil {
		log.Printf("[resolver] tv search failed title=%q year=%q err=%v", title, year, err)
	} else {
		okTiers++
		for _, id := range ids {
			names, err := r.client.FetchDirectors(ctx, id, tmdb.MediaTV)
			if err != nil {
				log.Printf("[resolver] tv credits fetch failed title=%q id=%d err=%v", title, id, err)
				continue
			}
			add(names)
		}
	}

	return models.Resolution{Directors: directors, Failed: okTiers == 0}
}
