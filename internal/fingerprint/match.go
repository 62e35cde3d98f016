package fingerprint

import (
	"cmp"
	"math"
	"math/bits"
	"slices"
)

// Entry is one aligned run between a query clip and an indexed track. Times
// are seconds relative to the start of each clip.
type Entry struct {
	TrackID            string
	QueryMatchStartsAt float64
	TrackMatchStartsAt float64
	Coverage           float64
	Confidence         float64
}

// QueryMatchEndsAt is the end of the run in query time.
func (e Entry) QueryMatchEndsAt() float64 {
	return e.QueryMatchStartsAt + e.Coverage
}

type matchParams struct {
	threshold    int
	tolerance    int
	gapFrames    int
	frameSeconds float64
}

func newMatchParams(threshold, tolerance int, permittedGap, frameSeconds float64) matchParams {
	return matchParams{
		threshold:    max(threshold, 1),
		tolerance:    max(tolerance, 0),
		gapFrames:    max(int(math.Floor(permittedGap/frameSeconds)), 0),
		frameSeconds: frameSeconds,
	}
}

// maxBucket caps how often a hash may repeat in a track and still vote.
// Constant material (silence, black frames) otherwise votes for every offset.
func maxBucket(trackLen int) int {
	return max(8, trackLen/20)
}

type offsetVotes struct {
	offset int
	votes  int
}

// voteOffsets counts, for every track-minus-query offset, how many query
// hashes occur verbatim in the track at that offset.
func voteOffsets(query, track []uint64, threshold int) []offsetVotes {
	buckets := make(map[uint64][]int, len(track))
	for j, h := range track {
		buckets[h] = append(buckets[h], j)
	}
	limit := maxBucket(len(track))
	votes := make(map[int]int)
	for i, h := range query {
		positions := buckets[h]
		if len(positions) > limit {
			continue
		}
		for _, j := range positions {
			votes[j-i]++
		}
	}

	var out []offsetVotes
	for offset, n := range votes {
		if n >= threshold {
			out = append(out, offsetVotes{offset: offset, votes: n})
		}
	}
	slices.SortFunc(out, func(a, b offsetVotes) int {
		if c := cmp.Compare(b.votes, a.votes); c != 0 {
			return c
		}
		return cmp.Compare(a.offset, b.offset)
	})
	return out
}

type run struct {
	start, last int
	matched     int
}

// alignedRuns walks query against track shifted by offset and groups frames
// within tolerance into runs, bridging gaps of up to gapFrames.
func alignedRuns(query, track []uint64, offset int, p matchParams) []run {
	from := max(0, -offset)
	to := min(len(query), len(track)-offset)
	var (
		runs    []run
		current *run
	)
	for i := from; i < to; i++ {
		if bits.OnesCount64(query[i]^track[i+offset]) > p.tolerance {
			continue
		}
		if current != nil && i-current.last-1 <= p.gapFrames {
			current.last = i
			current.matched++
			continue
		}
		if current != nil {
			runs = append(runs, *current)
		}
		current = &run{start: i, last: i, matched: 1}
	}
	if current != nil {
		runs = append(runs, *current)
	}
	return slices.DeleteFunc(runs, func(r run) bool { return r.matched < p.threshold })
}

func matchHashes(trackID string, query, track []uint64, p matchParams) []Entry {
	if len(query) == 0 || len(track) == 0 || p.frameSeconds <= 0 {
		return nil
	}
	var entries []Entry
	for _, candidate := range voteOffsets(query, track, p.threshold) {
		for _, r := range alignedRuns(query, track, candidate.offset, p) {
			length := r.last - r.start + 1
			entry := Entry{
				TrackID:            trackID,
				QueryMatchStartsAt: float64(r.start) * p.frameSeconds,
				TrackMatchStartsAt: float64(r.start+candidate.offset) * p.frameSeconds,
				Coverage:           float64(length) * p.frameSeconds,
				Confidence:         float64(r.matched) / float64(length),
			}
			if duplicate(entries, entry, float64(p.gapFrames+1)*p.frameSeconds) {
				continue
			}
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.QueryMatchStartsAt, b.QueryMatchStartsAt)
	})
	return entries
}

// duplicate reports whether e mostly repeats an accepted entry found at a
// neighbouring offset.
func duplicate(accepted []Entry, e Entry, slack float64) bool {
	shift := e.TrackMatchStartsAt - e.QueryMatchStartsAt
	for _, a := range accepted {
		if math.Abs(shift-(a.TrackMatchStartsAt-a.QueryMatchStartsAt)) > slack {
			continue
		}
		overlap := min(a.QueryMatchEndsAt(), e.QueryMatchEndsAt()) - max(a.QueryMatchStartsAt, e.QueryMatchStartsAt)
		if overlap >= e.Coverage/2 {
			return true
		}
	}
	return false
}
