package scanner

import (
	"context"

	"creditscan/internal/config"
	"creditscan/internal/episode"
)

// Counts holds the stored fingerprint (non-silence) timings of an episode.
type Counts struct {
	Intros  int
	Credits int
}

// Verdict is the outcome of Classify.
type Verdict struct {
	NeedsScanning        bool
	NeedsSilenceScanning bool
	// Track reports whether the episode requires any work in this context.
	Track bool
}

// Apply copies the flags onto ep.
func (v Verdict) Apply(ep *episode.Episode) {
	ep.NeedsScanning = v.NeedsScanning
	ep.NeedsSilenceScanning = v.NeedsSilenceScanning
}

// Work reports whether the episode requires any work.
func (v Verdict) Work() bool {
	return v.Track
}

// Classify decides whether ep needs fingerprint detection and/or silence
// detection. insertCheck marks first-time registration, where an episode
// unknown to the local store but known to the media server is tracked.
//
// An episode with no local record and no media server id is never tracked,
// even when redetection is forced.
func Classify(ep *episode.Episode, settings config.Detection, counts Counts, insertCheck bool) Verdict {
	scanValue := settings.FingerprintingEnabled()
	silenceValue := settings.DetectSilenceAfterCredits
	all := Verdict{NeedsScanning: scanValue, NeedsSilenceScanning: silenceValue, Track: true}

	switch {
	case !ep.Exists() || !episode.IsVideoExtension(ep.FullPath):
		return Verdict{}
	case !ep.InStore && ep.MetaID < 0:
		return Verdict{}
	case settings.ForceRedetect:
		return all
	case !ep.InStore:
		all.Track = insertCheck
		return all
	case ep.Changed():
		return all
	}

	var v Verdict
	if settings.DetectSilenceAfterCredits && !ep.SilenceDetectionDone {
		v.NeedsSilenceScanning = silenceValue
	}
	if scanValue && (counts.Intros < settings.IntroMatchCount || counts.Credits < settings.CreditsMatchCount) {
		v.NeedsScanning = true
	}
	v.Track = v.NeedsScanning || v.NeedsSilenceScanning
	return v
}

// classify loads the stored counts for ep, classifies it and applies the
// verdict.
func (s *Scanner) classify(ctx context.Context, ep *episode.Episode, settings config.Detection, insertCheck bool) (Verdict, error) {
	var counts Counts
	if ep.InStore {
		intros, credits, err := s.store.TimingCounts(ctx, ep.ID)
		if err != nil {
			return Verdict{}, err
		}
		counts = Counts{Intros: intros, Credits: credits}
	}
	v := Classify(ep, settings, counts, insertCheck)
	v.Apply(ep)
	return v, nil
}
