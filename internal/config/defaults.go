package config

const (
	defaultDataDir           = "~/.local/share/creditscan"
	defaultTempDir           = "~/.cache/creditscan/clips"
	defaultLogDir            = "~/.local/share/creditscan/logs"
	defaultPlexDB            = "/var/lib/plexmediaserver/Library/Application Support/Plex Media Server/Plug-in Support/Databases/com.plexapp.plugins.library.db"
	defaultAPIBind           = "127.0.0.1:7490"
	defaultFFmpeg            = "ffmpeg"
	defaultFFprobe           = "ffprobe"
	defaultFpcalc            = "fpcalc"
	defaultScanSchedule      = "@every 5m"
	defaultIntroPollSchedule = "@every 15m"
	defaultLogFormat         = "auto"
	defaultLogLevel          = "info"

	// OverrideFileName is the per-directory settings file consulted by SettingsFor.
	OverrideFileName = ".creditscan.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			TempDir: defaultTempDir,
			LogDir:  defaultLogDir,
			PlexDB:  defaultPlexDB,
			APIBind: defaultAPIBind,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
			Fpcalc:  defaultFpcalc,
		},
		Daemon: Daemon{
			ScanSchedule:               defaultScanSchedule,
			IntroPollSchedule:          defaultIntroPollSchedule,
			RecheckUndetectedOnStartup: false,
			RecheckSilenceOnStartup:    false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Detection: DefaultDetection(),
	}
}

// DefaultDetection returns the detection settings applied when neither the
// config file nor a directory override sets a value.
func DefaultDetection() Detection {
	return Detection{
		IntroMatchCount:                  1,
		CreditsMatchCount:                1,
		UseAudio:                         true,
		UseVideo:                         false,
		IntroStart:                       0,
		IntroEnd:                         0.5,
		IntroMaxSearchPeriod:             900,
		CreditsStart:                     0.7,
		CreditsEnd:                       1,
		CreditsMaxSearchPeriod:           600,
		MinimumMatchSeconds:              20,
		PermittedGap:                     2,
		PermittedGapWithMinimumEnclosure: 10,
		ShiftSegmentBySeconds:            2,
		DetectSilenceAfterCredits:        true,
		SilenceDecibels:                  -55,
		QuickDetectFingerprintSamples:    5,
		FullDetectFingerprintMaxSamples:  10,
		AudioAccuracy:                    4,
		VideoAccuracy:                    2,
		SampleRate:                       11025,
		FrameRate:                        2,
	}
}
