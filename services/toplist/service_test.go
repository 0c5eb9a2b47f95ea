package toplist

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"auteur/models"
)

// fakeResolver maps titles to fixed director sets.
type fakeResolver struct {
	directors map[string][]string
}

func (f *fakeResolver) Resolve(_ context.Context, title, _ string) models.Resolution {
	return models.Resolution{Directors: f.directors[title]}
}

func mannRows() []models.RatingEntry {
	return []models.RatingEntry{
		{Title: "Heat", Year: "1995", Rating: 4.5},
		{Title: "Collateral", Year: "2004", Rating: 4.0},
		{Title: "Miami Vice", Year: "2006", Rating: 3.0},
		{Title: "Blackhat", Year: "2015", Rating: 2.5},
	}
}

func mannResolver() *fakeResolver {
	return &fakeResolver{directors: map[string][]string{
		"Heat":       {"Michael Mann"},
		"Collateral": {"Michael Mann"},
		"Miami Vice": {"Michael Mann"},
		"Blackhat":   {"Michael Mann"},
	}}
}

func TestAggregateSingleDirector(t *testing.T) {
	svc := NewService(mannResolver())

	ranked := svc.Aggregate(context.Background(), mannRows(), 4)
	if len(ranked) != 1 {
		t.Fatalf("expected exactly one entry, got %d: %+v", len(ranked), ranked)
	}
	entry := ranked[0]
	if entry.Director != "Michael Mann" {
		t.Fatalf("unexpected director: %q", entry.Director)
	}
	if math.Abs(entry.Avg-3.5) > 1e-9 {
		t.Fatalf("expected avg 3.5, got %v", entry.Avg)
	}
	if entry.Films != 4 {
		t.Fatalf("expected 4 films, got %d", entry.Films)
	}
}

func TestAggregateBelowThresholdExcluded(t *testing.T) {
	svc := NewService(mannResolver())

	ranked := svc.Aggregate(context.Background(), mannRows(), 5)
	if len(ranked) != 0 {
		t.Fatalf("expected empty list below threshold, got %+v", ranked)
	}
}

func TestAggregateUnresolvedRowsExcluded(t *testing.T) {
	svc := NewService(&fakeResolver{directors: map[string][]string{}})

	ranked := svc.Aggregate(context.Background(), mannRows(), 1)
	if len(ranked) != 0 {
		t.Fatalf("rows with no credits must not create buckets, got %+v", ranked)
	}
}

func TestAggregateMultiDirectorFullCredit(t *testing.T) {
	svc := NewService(&fakeResolver{directors: map[string][]string{
		"No Country for Old Men": {"Joel Coen", "Ethan Coen"},
	}})

	rows := []models.RatingEntry{{Title: "No Country for Old Men", Year: "2007", Rating: 5.0}}
	ranked := svc.Aggregate(context.Background(), rows, 1)
	if len(ranked) != 2 {
		t.Fatalf("expected both co-directors credited, got %+v", ranked)
	}
	for _, entry := range ranked {
		if entry.Avg != 5.0 || entry.Films != 1 {
			t.Fatalf("co-direction must not split the rating: %+v", entry)
		}
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	resolver := &fakeResolver{directors: map[string][]string{}}
	var rows []models.RatingEntry
	for d := 0; d < 5; d++ {
		director := fmt.Sprintf("Director %d", d)
		for f := 0; f < 4; f++ {
			title := fmt.Sprintf("Film %d-%d", d, f)
			resolver.directors[title] = []string{director}
			rows = append(rows, models.RatingEntry{
				Title:  title,
				Year:   "2000",
				Rating: 0.5 + 0.5*float64((d+f)%9),
			})
		}
	}
	svc := NewService(resolver)

	baseline := rankedByDirector(svc.Aggregate(context.Background(), rows, 1))

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 5; trial++ {
		shuffled := append([]models.RatingEntry(nil), rows...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := rankedByDirector(svc.Aggregate(context.Background(), shuffled, 1))
		if len(got) != len(baseline) {
			t.Fatalf("trial %d: expected %d entries, got %d", trial, len(baseline), len(got))
		}
		for director, want := range baseline {
			entry, ok := got[director]
			if !ok {
				t.Fatalf("trial %d: missing director %q", trial, director)
			}
			if entry.Films != want.Films || math.Abs(entry.Avg-want.Avg) > 1e-9 {
				t.Fatalf("trial %d: %q got %+v want %+v", trial, director, entry, want)
			}
		}
	}
}

func rankedByDirector(entries []models.RankedEntry) map[string]models.RankedEntry {
	m := make(map[string]models.RankedEntry, len(entries))
	for _, e := range entries {
		m[e.Director] = e
	}
	return m
}

func TestAggregateTruncatesToTen(t *testing.T) {
	resolver := &fakeResolver{directors: map[string][]string{}}
	var rows []models.RatingEntry
	for d := 0; d < 12; d++ {
		title := fmt.Sprintf("Film %d", d)
		resolver.directors[title] = []string{fmt.Sprintf("Director %d", d)}
		rows = append(rows, models.RatingEntry{
			Title:  title,
			Rating: 0.25 * float64(d+1),
		})
	}
	svc := NewService(resolver)

	ranked := svc.Aggregate(context.Background(), rows, 1)
	if len(ranked) != MaxEntries {
		t.Fatalf("expected %d entries, got %d", MaxEntries, len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Avg > ranked[i-1].Avg {
			t.Fatalf("entries not sorted descending at %d: %+v", i, ranked)
		}
	}
	// The two lowest-rated directors fell off the end.
	if ranked[0].Director != "Director 11" {
		t.Fatalf("expected highest average first, got %+v", ranked[0])
	}
}

func TestClampMinCredits(t *testing.T) {
	tests := map[string]int{
		"":    DefaultMinCredits,
		"abc": DefaultMinCredits,
		"0":   1,
		"-3":  1,
		"1":   1,
		"4":   4,
		"10":  10,
		"11":  10,
		"999": 10,
		" 6 ": 6,
	}
	for input, want := range tests {
		if got := ClampMinCredits(input); got != want {
			t.Errorf("ClampMinCredits(%q) = %d, want %d", input, got, want)
		}
	}
}
