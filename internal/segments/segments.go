package segments

import (
	"fmt"
	"slices"
)

// Segment is a half-open time interval [Start, End) in seconds within an
// episode. IsCredits selects the category (credits vs intro); IsSilence marks
// intervals found by silence detection rather than fingerprint matching.
type Segment struct {
	Start     float64
	End       float64
	IsCredits bool
	IsSilence bool
}

// Duration returns End - Start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Category returns "intro", "credits" or "silence".
func (s Segment) Category() string {
	switch {
	case s.IsSilence:
		return "silence"
	case s.IsCredits:
		return "credits"
	default:
		return "intro"
	}
}

// Shift moves both bounds by offset seconds.
func (s Segment) Shift(offset float64) Segment {
	s.Start += offset
	s.End += offset
	return s
}

func (s Segment) String() string {
	return fmt.Sprintf("%s [%.2f, %.2f)", s.Category(), s.Start, s.End)
}

// gap is the distance between two intervals; negative when they overlap.
func gap(a, b Segment) float64 {
	return max(a.Start, b.Start) - min(a.End, b.End)
}

// Segments is an ordered collection of tagged intervals.
type Segments struct {
	items []Segment
}

// New returns a collection holding a copy of items, inserted without merging.
func New(items ...Segment) *Segments {
	return &Segments{items: slices.Clone(items)}
}

// All returns a copy of the entries.
func (s *Segments) All() []Segment {
	if s == nil {
		return nil
	}
	return slices.Clone(s.items)
}

// Len returns the number of entries.
func (s *Segments) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// At returns the i-th entry.
func (s *Segments) At(i int) Segment {
	return s.items[i]
}

// Clone returns an independent copy.
func (s *Segments) Clone() *Segments {
	if s == nil {
		return &Segments{}
	}
	return &Segments{items: slices.Clone(s.items)}
}

// Append adds seg without coalescing.
func (s *Segments) Append(seg Segment) {
	s.items = append(s.items, seg)
}

// Clear removes every entry.
func (s *Segments) Clear() {
	s.items = s.items[:0]
}

// AddSegment inserts seg, coalescing it with existing entries of the same
// category that overlap, touch, or lie within permittedGap seconds of it.
// Intro and credits entries never merge with each other. When
// forceCategoryMatch is set, silence and fingerprint entries are also kept
// apart; otherwise a silence interval may extend a fingerprint interval of the
// same category, and the result is tagged as fingerprint.
//
// After a merge the grown interval is checked again against the remaining
// entries, so the gap-coalesced invariant holds for any insertion order.
func (s *Segments) AddSegment(seg Segment, permittedGap float64, forceCategoryMatch bool) {
	merged := seg
	position := -1
	for {
		idx := slices.IndexFunc(s.items, func(existing Segment) bool {
			return mergeable(existing, merged, permittedGap, forceCategoryMatch)
		})
		if idx < 0 {
			break
		}
		existing := s.items[idx]
		merged = Segment{
			Start:     min(existing.Start, merged.Start),
			End:       max(existing.End, merged.End),
			IsCredits: existing.IsCredits,
			IsSilence: existing.IsSilence && merged.IsSilence,
		}
		s.items = slices.Delete(s.items, idx, idx+1)
		if position < 0 || idx < position {
			position = idx
		}
	}
	if position < 0 || position > len(s.items) {
		s.items = append(s.items, merged)
		return
	}
	s.items = slices.Insert(s.items, position, merged)
}

func mergeable(a, b Segment, permittedGap float64, forceCategoryMatch bool) bool {
	if a.IsCredits != b.IsCredits {
		return false
	}
	if forceCategoryMatch && a.IsSilence != b.IsSilence {
		return false
	}
	return gap(a, b) <= permittedGap
}

// FindAllOverlaps returns the pairwise intersections between the receiver and
// other, restricted to entries of the same intro/credits category. Results
// carry the receiver's tags and are ordered by start.
func (s *Segments) FindAllOverlaps(other *Segments) *Segments {
	out := &Segments{}
	if s.Len() == 0 || other.Len() == 0 {
		return out
	}

	left := sortedByStart(s.items)
	right := sortedByStart(other.items)
	for _, a := range left {
		for _, b := range right {
			if b.Start >= a.End {
				break
			}
			if a.IsCredits != b.IsCredits {
				continue
			}
			lo := max(a.Start, b.Start)
			hi := min(a.End, b.End)
			if lo < hi {
				out.items = append(out.items, Segment{Start: lo, End: hi, IsCredits: a.IsCredits, IsSilence: a.IsSilence})
			}
		}
	}
	out.SortByStart()
	return out
}

func sortedByStart(items []Segment) []Segment {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, compareStart)
	return sorted
}

func compareStart(a, b Segment) int {
	switch {
	case a.Start < b.Start:
		return -1
	case a.Start > b.Start:
		return 1
	case a.End < b.End:
		return -1
	case a.End > b.End:
		return 1
	default:
		return 0
	}
}

// SortByStart orders entries by ascending start time.
func (s *Segments) SortByStart() {
	slices.SortStableFunc(s.items, compareStart)
}

// SortByDurationDesc orders entries longest first.
func (s *Segments) SortByDurationDesc() {
	slices.SortStableFunc(s.items, func(a, b Segment) int {
		switch {
		case a.Duration() > b.Duration():
			return -1
		case a.Duration() < b.Duration():
			return 1
		default:
			return 0
		}
	})
}

// Filter returns the entries matching keep, in order.
func (s *Segments) Filter(keep func(Segment) bool) []Segment {
	if s == nil {
		return nil
	}
	var out []Segment
	for _, seg := range s.items {
		if keep(seg) {
			out = append(out, seg)
		}
	}
	return out
}

// Count returns the number of entries matching pred.
func (s *Segments) Count(pred func(Segment) bool) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, seg := range s.items {
		if pred(seg) {
			n++
		}
	}
	return n
}

// RemoveWhere deletes the entries matching pred.
func (s *Segments) RemoveWhere(pred func(Segment) bool) {
	s.items = slices.DeleteFunc(s.items, pred)
}

// First returns the first entry matching pred.
func (s *Segments) First(pred func(Segment) bool) (Segment, bool) {
	if s == nil {
		return Segment{}, false
	}
	for _, seg := range s.items {
		if pred(seg) {
			return seg, true
		}
	}
	return Segment{}, false
}

// IsIntro matches fingerprint intro entries.
func IsIntro(s Segment) bool { return !s.IsCredits && !s.IsSilence }

// IsCreditsMatch matches fingerprint credits entries.
func IsCreditsMatch(s Segment) bool { return s.IsCredits && !s.IsSilence }

// IsSilence matches silence entries.
func IsSilence(s Segment) bool { return s.IsSilence }

// NotSilence matches every fingerprint entry.
func NotSilence(s Segment) bool { return !s.IsSilence }
