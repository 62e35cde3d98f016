package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
)

// Detection holds the settings that steer intro/credits detection for a
// directory. Times are in seconds; Start/End values are fractions of the
// episode duration.
type Detection struct {
	IntroMatchCount   int  `toml:"intro_match_count"`
	CreditsMatchCount int  `toml:"credits_match_count"`
	UseAudio          bool `toml:"use_audio"`
	UseVideo          bool `toml:"use_video"`

	IntroStart             float64 `toml:"intro_start"`
	IntroEnd               float64 `toml:"intro_end"`
	IntroMaxSearchPeriod   float64 `toml:"intro_max_search_period"`
	CreditsStart           float64 `toml:"credits_start"`
	CreditsEnd             float64 `toml:"credits_end"`
	CreditsMaxSearchPeriod float64 `toml:"credits_max_search_period"`

	MinimumMatchSeconds              float64 `toml:"minimum_match_seconds"`
	PermittedGap                     float64 `toml:"permitted_gap"`
	PermittedGapWithMinimumEnclosure float64 `toml:"permitted_gap_with_minimum_enclosure"`
	ShiftSegmentBySeconds            float64 `toml:"shift_segment_by_seconds"`

	DetectSilenceAfterCredits bool    `toml:"detect_silence_after_credits"`
	SilenceDecibels           float64 `toml:"silence_decibels"`

	QuickDetectFingerprintSamples   int  `toml:"quick_detect_fingerprint_samples"`
	FullDetectFingerprintMaxSamples int  `toml:"full_detect_fingerprint_max_samples"`
	ForceRedetect                   bool `toml:"force_redetect"`

	// AudioAccuracy and VideoAccuracy are the minimum number of agreeing hash
	// votes before an alignment is considered a match candidate.
	AudioAccuracy int     `toml:"audio_accuracy"`
	VideoAccuracy int     `toml:"video_accuracy"`
	SampleRate    int     `toml:"sample_rate"`
	FrameRate     float64 `toml:"frame_rate"`
}

// MaximumMatches is the number of accepted segments an episode needs before it
// counts as fully detected. Zero disables detection.
func (d Detection) MaximumMatches() int {
	return d.IntroMatchCount + d.CreditsMatchCount
}

// FingerprintingEnabled reports whether any fingerprint detection work is configured.
func (d Detection) FingerprintingEnabled() bool {
	return d.MaximumMatches() > 0 && (d.UseAudio || d.UseVideo)
}

func (d Detection) validate(prefix string) error {
	if d.IntroMatchCount < 0 || d.CreditsMatchCount < 0 {
		return fmt.Errorf("%s: match counts must be >= 0", prefix)
	}
	fractions := map[string]float64{
		"intro_start":   d.IntroStart,
		"intro_end":     d.IntroEnd,
		"credits_start": d.CreditsStart,
		"credits_end":   d.CreditsEnd,
	}
	for key, value := range fractions {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s.%s must be between 0 and 1", prefix, key)
		}
	}
	if d.IntroStart >= d.IntroEnd {
		return fmt.Errorf("%s.intro_start must be less than intro_end", prefix)
	}
	if d.CreditsStart >= d.CreditsEnd {
		return fmt.Errorf("%s.credits_start must be less than credits_end", prefix)
	}
	if d.IntroMaxSearchPeriod <= 0 || d.CreditsMaxSearchPeriod <= 0 {
		return fmt.Errorf("%s: max search periods must be positive", prefix)
	}
	if d.MinimumMatchSeconds < 0 || d.PermittedGap < 0 || d.PermittedGapWithMinimumEnclosure < 0 {
		return fmt.Errorf("%s: match length and gaps must be >= 0", prefix)
	}
	if d.QuickDetectFingerprintSamples < 0 || d.FullDetectFingerprintMaxSamples < 0 {
		return fmt.Errorf("%s: fingerprint sample counts must be >= 0", prefix)
	}
	if d.AudioAccuracy <= 0 || d.VideoAccuracy <= 0 {
		return fmt.Errorf("%s: accuracy values must be positive", prefix)
	}
	if d.SampleRate <= 0 {
		return fmt.Errorf("%s.sample_rate must be positive", prefix)
	}
	if d.FrameRate <= 0 {
		return fmt.Errorf("%s.frame_rate must be positive", prefix)
	}
	return nil
}

// SettingsFor resolves the detection settings for dir. The [detection] section
// is the base; every override file found between the owning library root and
// dir is applied in order, so the closest file wins.
func (c *Config) SettingsFor(dir string) (Detection, error) {
	settings := c.Detection
	dir = filepath.Clean(dir)
	root := c.LibraryRootFor(dir)

	for _, candidate := range overrideChain(root, dir) {
		values, err := readOverrideFile(candidate)
		if err != nil {
			return Detection{}, err
		}
		if values == nil {
			continue
		}
		if err := applyOverrides(&settings, values); err != nil {
			return Detection{}, fmt.Errorf("%s: %w", candidate, err)
		}
	}

	if err := settings.validate(dir); err != nil {
		return Detection{}, err
	}
	return settings, nil
}

// overrideChain lists override file paths from root down to dir inclusive.
func overrideChain(root, dir string) []string {
	var dirs []string
	for current := dir; ; current = filepath.Dir(current) {
		dirs = append(dirs, current)
		if current == root || filepath.Dir(current) == current {
			break
		}
	}
	chain := make([]string, 0, len(dirs))
	for i := len(dirs) - 1; i >= 0; i-- {
		chain = append(chain, filepath.Join(dirs[i], OverrideFileName))
	}
	return chain
}

func readOverrideFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read override %q: %w", path, err)
	}
	values := map[string]any{}
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse override %q: %w", path, err)
	}
	if nested, ok := values["detection"].(map[string]any); ok {
		delete(values, "detection")
		for key, value := range nested {
			values[key] = value
		}
	}
	return values, nil
}

func applyOverrides(d *Detection, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		var err error
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "intro_match_count":
			d.IntroMatchCount, err = cast.ToIntE(value)
		case "credits_match_count":
			d.CreditsMatchCount, err = cast.ToIntE(value)
		case "use_audio":
			d.UseAudio, err = cast.ToBoolE(value)
		case "use_video":
			d.UseVideo, err = cast.ToBoolE(value)
		case "intro_start":
			d.IntroStart, err = cast.ToFloat64E(value)
		case "intro_end":
			d.IntroEnd, err = cast.ToFloat64E(value)
		case "intro_max_search_period":
			d.IntroMaxSearchPeriod, err = cast.ToFloat64E(value)
		case "credits_start":
			d.CreditsStart, err = cast.ToFloat64E(value)
		case "credits_end":
			d.CreditsEnd, err = cast.ToFloat64E(value)
		case "credits_max_search_period":
			d.CreditsMaxSearchPeriod, err = cast.ToFloat64E(value)
		case "minimum_match_seconds":
			d.MinimumMatchSeconds, err = cast.ToFloat64E(value)
		case "permitted_gap":
			d.PermittedGap, err = cast.ToFloat64E(value)
		case "permitted_gap_with_minimum_enclosure":
			d.PermittedGapWithMinimumEnclosure, err = cast.ToFloat64E(value)
		case "shift_segment_by_seconds":
			d.ShiftSegmentBySeconds, err = cast.ToFloat64E(value)
		case "detect_silence_after_credits":
			d.DetectSilenceAfterCredits, err = cast.ToBoolE(value)
		case "silence_decibels":
			d.SilenceDecibels, err = cast.ToFloat64E(value)
		case "quick_detect_fingerprint_samples":
			d.QuickDetectFingerprintSamples, err = cast.ToIntE(value)
		case "full_detect_fingerprint_max_samples":
			d.FullDetectFingerprintMaxSamples, err = cast.ToIntE(value)
		case "force_redetect":
			d.ForceRedetect, err = cast.ToBoolE(value)
		case "audio_accuracy":
			d.AudioAccuracy, err = cast.ToIntE(value)
		case "video_accuracy":
			d.VideoAccuracy, err = cast.ToIntE(value)
		case "sample_rate":
			d.SampleRate, err = cast.ToIntE(value)
		case "frame_rate":
			d.FrameRate, err = cast.ToFloat64E(value)
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
	}
	return nil
}
