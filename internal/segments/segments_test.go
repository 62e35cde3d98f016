package segments_test

import (
	"math/rand"
	"testing"

	"creditscan/internal/segments"
)

func TestAddSegmentMergesTouchingIntervals(t *testing.T) {
	s := segments.New()
	s.AddSegment(segments.Segment{Start: 0, End: 10}, 0, false)
	s.AddSegment(segments.Segment{Start: 10, End: 20}, 0, false)

	all := s.All()
	if len(all) != 1 {
		t.Fatalf("expected one merged interval, got %v", all)
	}
	if all[0].Start != 0 || all[0].End != 20 {
		t.Fatalf("unexpected merged interval: %v", all[0])
	}
}

func TestAddSegmentHonoursGap(t *testing.T) {
	cases := []struct {
		name string
		gap  float64
		want int
	}{
		{"within gap", 5, 1},
		{"exactly gap", 3, 1},
		{"beyond gap", 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := segments.New()
			s.AddSegment(segments.Segment{Start: 0, End: 10}, tc.gap, false)
			s.AddSegment(segments.Segment{Start: 13, End: 20}, tc.gap, false)
			if s.Len() != tc.want {
				t.Fatalf("expected %d entries, got %v", tc.want, s.All())
			}
		})
	}
}

func TestAddSegmentNeverMergesIntroWithCredits(t *testing.T) {
	for _, force := range []bool{false, true} {
		s := segments.New()
		s.AddSegment(segments.Segment{Start: 0, End: 10}, 100, force)
		s.AddSegment(segments.Segment{Start: 5, End: 15, IsCredits: true}, 100, force)
		if s.Len() != 2 {
			t.Fatalf("force=%v: expected categories kept apart, got %v", force, s.All())
		}
	}
}

func TestAddSegmentForceCategoryMatchKeepsSilenceApart(t *testing.T) {
	credits := segments.Segment{Start: 1200, End: 1260, IsCredits: true}
	silence := segments.Segment{Start: 1255, End: 1290, IsCredits: true, IsSilence: true}

	forced := segments.New()
	forced.AddSegment(credits, 0, true)
	forced.AddSegment(silence, 0, true)
	if forced.Len() != 2 {
		t.Fatalf("expected silence kept apart when forced, got %v", forced.All())
	}

	loose := segments.New()
	loose.AddSegment(credits, 0, false)
	loose.AddSegment(silence, 0, false)
	all := loose.All()
	if len(all) != 1 {
		t.Fatalf("expected silence to extend credits, got %v", all)
	}
	if all[0].End != 1290 || all[0].IsSilence || !all[0].IsCredits {
		t.Fatalf("unexpected merged entry: %+v", all[0])
	}
}

func TestAddSegmentFingerprintTagSurvivesEitherOrder(t *testing.T) {
	credits := segments.Segment{Start: 1200, End: 1260, IsCredits: true}
	silence := segments.Segment{Start: 1255, End: 1290, IsCredits: true, IsSilence: true}

	for name, order := range map[string][]segments.Segment{
		"silence after credits": {credits, silence},
		"credits after silence": {silence, credits},
	} {
		s := segments.New()
		for _, seg := range order {
			s.AddSegment(seg, 0, false)
		}
		all := s.All()
		if len(all) != 1 || all[0].IsSilence || !all[0].IsCredits || all[0].Start != 1200 || all[0].End != 1290 {
			t.Fatalf("%s: expected one fingerprint credits entry, got %v", name, all)
		}
		if s.Count(segments.IsCreditsMatch) != 1 {
			t.Fatalf("%s: merged entry must still count as a credits match", name)
		}
	}
}

func TestAddSegmentBridgesAfterGrowth(t *testing.T) {
	s := segments.New()
	s.AddSegment(segments.Segment{Start: 0, End: 10}, 1, false)
	s.AddSegment(segments.Segment{Start: 20, End: 30}, 1, false)
	s.AddSegment(segments.Segment{Start: 10.5, End: 19.5}, 1, false)

	all := s.All()
	if len(all) != 1 || all[0].Start != 0 || all[0].End != 30 {
		t.Fatalf("expected bridge to merge all three, got %v", all)
	}
}

func TestAddSegmentGapInvariantRandomOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const gap = 2.0
	for round := 0; round < 50; round++ {
		s := segments.New()
		for i := 0; i < 30; i++ {
			start := rng.Float64() * 500
			s.AddSegment(segments.Segment{
				Start:     start,
				End:       start + 1 + rng.Float64()*20,
				IsCredits: rng.Intn(2) == 0,
			}, gap, true)
		}
		all := s.All()
		for i := range all {
			for j := i + 1; j < len(all); j++ {
				a, b := all[i], all[j]
				if a.IsCredits != b.IsCredits {
					continue
				}
				distance := max(a.Start, b.Start) - min(a.End, b.End)
				if distance <= gap {
					t.Fatalf("round %d: %v and %v are within gap", round, a, b)
				}
			}
		}
	}
}

func TestFindAllOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b []segments.Segment
		want []segments.Segment
	}{
		{
			name: "disjoint",
			a:    []segments.Segment{{Start: 0, End: 10}},
			b:    []segments.Segment{{Start: 20, End: 30}},
			want: nil,
		},
		{
			name: "partial",
			a:    []segments.Segment{{Start: 0, End: 10}},
			b:    []segments.Segment{{Start: 5, End: 15}},
			want: []segments.Segment{{Start: 5, End: 10}},
		},
		{
			name: "touching is empty",
			a:    []segments.Segment{{Start: 0, End: 10}},
			b:    []segments.Segment{{Start: 10, End: 15}},
			want: nil,
		},
		{
			name: "multiple",
			a:    []segments.Segment{{Start: 0, End: 100}},
			b:    []segments.Segment{{Start: 50, End: 60}, {Start: 10, End: 20}},
			want: []segments.Segment{{Start: 10, End: 20}, {Start: 50, End: 60}},
		},
		{
			name: "categories isolated",
			a:    []segments.Segment{{Start: 0, End: 10}},
			b:    []segments.Segment{{Start: 0, End: 10, IsCredits: true}},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := segments.New(tc.a...).FindAllOverlaps(segments.New(tc.b...)).All()
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i].Start != tc.want[i].Start || got[i].End != tc.want[i].End {
					t.Fatalf("entry %d: expected %v, got %v", i, tc.want[i], got[i])
				}
			}

			reverse := segments.New(tc.b...).FindAllOverlaps(segments.New(tc.a...)).All()
			if len(reverse) != len(got) {
				t.Fatalf("overlap not commutative: %v vs %v", got, reverse)
			}
			for i := range got {
				if got[i].Start != reverse[i].Start || got[i].End != reverse[i].End {
					t.Fatalf("overlap bounds differ: %v vs %v", got, reverse)
				}
			}
		})
	}
}

func TestFindAllOverlapsUsesReceiverTags(t *testing.T) {
	a := segments.New(segments.Segment{Start: 0, End: 10, IsCredits: true})
	b := segments.New(segments.Segment{Start: 2, End: 8, IsCredits: true, IsSilence: true})
	got := a.FindAllOverlaps(b).All()
	if len(got) != 1 || got[0].IsSilence || !got[0].IsCredits {
		t.Fatalf("expected receiver tags, got %v", got)
	}
}

func TestSortingAndCounting(t *testing.T) {
	s := segments.New(
		segments.Segment{Start: 100, End: 110, IsCredits: true},
		segments.Segment{Start: 0, End: 40},
		segments.Segment{Start: 50, End: 60},
		segments.Segment{Start: 120, End: 150, IsCredits: true, IsSilence: true},
	)

	s.SortByDurationDesc()
	if s.At(0).Start != 0 {
		t.Fatalf("expected longest first, got %v", s.All())
	}
	s.SortByStart()
	if s.At(0).Start != 0 || s.At(3).Start != 120 {
		t.Fatalf("expected start order, got %v", s.All())
	}
	if n := s.Count(segments.IsIntro); n != 2 {
		t.Fatalf("expected 2 intros, got %d", n)
	}
	if n := s.Count(segments.IsCreditsMatch); n != 1 {
		t.Fatalf("expected 1 credits match, got %d", n)
	}
	s.RemoveWhere(segments.IsSilence)
	if s.Len() != 3 {
		t.Fatalf("expected silence removed, got %v", s.All())
	}
	if first, ok := s.First(segments.IsCreditsMatch); !ok || first.Start != 100 {
		t.Fatalf("unexpected first credits: %v %v", first, ok)
	}
}
