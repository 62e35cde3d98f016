package scanner_test

import (
	"testing"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/scanner"
	"creditscan/internal/segments"
)

func TestSearchWindow(t *testing.T) {
	defaults := config.Default().Detection
	shortIntro := defaults
	shortIntro.IntroEnd = 0.1
	shortCredits := defaults
	shortCredits.CreditsMaxSearchPeriod = 300

	tests := []struct {
		name      string
		settings  config.Detection
		isCredits bool
		reference *segments.Segment
		override  *segments.Segment
		start     float64
		end       float64
	}{
		{name: "intro", settings: defaults, start: 0, end: 660},
		{name: "intro end fraction", settings: shortIntro, start: 0, end: 132},
		{name: "intro after reference", settings: defaults, reference: &segments.Segment{Start: 10, End: 70}, start: 100, end: 660},
		{name: "credits", settings: defaults, isCredits: true, start: 924, end: 1320},
		{name: "credits max period", settings: shortCredits, isCredits: true, start: 1020, end: 1320},
		{name: "override clamped to duration", settings: defaults, isCredits: true, override: &segments.Segment{Start: 1290, End: 1320}, start: 1260, end: 1320},
		{name: "override clamped at zero", settings: defaults, override: &segments.Segment{Start: 10, End: 40}, start: 0, end: 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := &episode.Episode{Duration: testDuration, ReferenceIntro: tt.reference}
			got := scanner.SearchWindow(ep, tt.settings, tt.isCredits, tt.override)
			if !near(got.Start, tt.start) || !near(got.End, tt.end) {
				t.Fatalf("SearchWindow = [%v, %v), want [%v, %v)", got.Start, got.End, tt.start, tt.end)
			}
		})
	}
}
