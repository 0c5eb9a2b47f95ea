package toplist

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"auteur/models"
)

// MaxEntries caps the ranked list.
const MaxEntries = 10

// Minimum-credits threshold policy: callers may supply 1-10, anything
// absent or non-numeric falls back to the default.
const (
	DefaultMinCredits = 4
	minCreditsFloor   = 1
	minCreditsCeiling = 10
)

type directorResolver interface {
	Resolve(ctx context.Context, title, year string) models.Resolution
}

// Service folds a batch of rated rows into a ranked top list of directors
// by average rating.
type Service struct {
	resolver directorResolver
}

func NewService(r directorResolver) *Service {
	return &Service{resolver: r}
}

type bucket struct {
	sum   float64
	count int
}

// Aggregate resolves every row concurrently, accumulates per-director
// running sums, and reduces to at most MaxEntries entries sorted by
// average rating descending. A row with N resolved directors contributes
// its rating fully to all N buckets. One row failing to resolve never
// aborts the batch; accumulation is order-independent, so the final sums
// do not depend on how the concurrent resolutions interleave. Relative
// order between equal averages is unspecified.
func (s *Service) Aggregate(ctx context.Context, rows []models.RatingEntry, minCredits int) []models.RankedEntry {
	if minCredits < minCreditsFloor {
		minCredits = minCreditsFloor
	}

	buckets := make(map[string]*bucket)
	var mu sync.Mutex
	var failed int32

	p := pool.New()
	for _, row := range rows {
		row := row
		p.Go(func() {
			res := s.resolver.Resolve(ctx, row.Title, row.Year)
			if res.Failed {
				atomic.AddInt32(&failed, 1)
			}
			if len(res.Directors) == 0 {
				return
			}
			mu.Lock()
			for _, name := range res.Directors {
				b := buckets[name]
				if b == nil {
					b = &bucket{}
					buckets[name] = b
				}
				b.sum += row.Rating
				b.count++
			}
			mu.Unlock()
		})
	}
	p.Wait()

	entries := make([]models.RankedEntry, 0, len(buckets))
	for name, b := range buckets {
		if b.count < minCredits {
			continue
		}
		entries = append(entries, models.RankedEntry{
			Director: name,
			Avg:      b.sum / float64(b.count),
			Films:    b.count,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Avg > entries[j].Avg
	})
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	log.Printf("[toplist] aggregated rows=%d directors=%d failedLookups=%d ranked=%d minCredits=%d",
		len(rows), len(buckets), atomic.LoadInt32(&failed), len(entries), minCredits)
	return entries
}

// ClampMinCredits parses a caller-supplied minimum-credits value. Absent
// or non-numeric input falls back to DefaultMinCredits; numeric input is
// clamped to [1, 10].
func ClampMinCredits(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultMinCredits
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultMinCredits
	}
	if v < minCreditsFloor {
		return minCreditsFloor
	}
	if v > minCreditsCeiling {
		return minCreditsCeiling
	}
	return v
}
