package scanner

import (
	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/segments"
)

// referencePadding keeps intro searches clear of a known reference intro and
// widens override windows on both sides.
const referencePadding = 30.0

// SearchWindow returns the part of ep to cut for a category. Credits windows
// end at duration*CreditsEnd and reach back at most CreditsMaxSearchPeriod;
// intro windows start at duration*IntroStart (but never before 30s past a
// reference intro) and reach forward at most IntroMaxSearchPeriod, never past
// duration*IntroEnd. A non-nil override replaces the computed window with
// override widened by 30s. The end is always clamped to the duration.
func SearchWindow(ep *episode.Episode, settings config.Detection, isCredits bool, override *segments.Segment) segments.Segment {
	d := ep.Duration
	var win segments.Segment
	if isCredits {
		length := min(settings.CreditsMaxSearchPeriod, d*settings.CreditsEnd-d*settings.CreditsStart)
		win.End = d * settings.CreditsEnd
		win.Start = win.End - length
		win.IsCredits = true
	} else {
		length := min(settings.IntroMaxSearchPeriod, d*settings.IntroEnd-d*settings.IntroStart)
		win.Start = d * settings.IntroStart
		if ep.ReferenceIntro != nil {
			win.Start = max(win.Start, ep.ReferenceIntro.End+referencePadding)
		}
		win.End = min(win.Start+length, d, d*settings.IntroEnd)
	}

	if override != nil {
		win.Start = max(override.Start-referencePadding, 0)
		win.End = override.End + referencePadding
	}
	win.End = min(win.End, d)
	return win
}
