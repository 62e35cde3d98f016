package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"

	"creditscan/internal/segments"
)

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?\d+\.?\d*)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?\d+\.?\d*)`)
)

// ParseSilenceDetect extracts silence intervals from silencedetect log output.
// A silence_start without a matching silence_end is dropped.
func ParseSilenceDetect(output string) []segments.Segment {
	var (
		out          []segments.Segment
		currentStart float64
		startSet     bool
	)
	for _, line := range strings.Split(output, "\n") {
		if m := silenceStartRe.FindStringSubmatch(line); len(m) >= 2 {
			start, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			currentStart = max(start, 0)
			startSet = true
		}
		if m := silenceEndRe.FindStringSubmatch(line); len(m) >= 2 && startSet {
			end, err := strconv.ParseFloat(m[1], 64)
			startSet = false
			if err != nil || end <= currentStart {
				continue
			}
			out = append(out, segments.Segment{Start: currentStart, End: end, IsSilence: true})
		}
	}
	return out
}
