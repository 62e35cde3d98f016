package ffprobe

import "testing"

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		video   bool
	}{
		{
			name:    "format duration",
			payload: `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"duration":"1320.512"}}`,
			want:    1320.512,
			video:   true,
		},
		{
			name:    "stream fallback",
			payload: `{"streams":[{"codec_type":"audio","duration":"61.5"},{"codec_type":"audio","duration":"62.25"}],"format":{}}`,
			want:    62.25,
		},
		{
			name:    "invalid number",
			payload: `{"format":{"duration":"N/A"}}`,
			want:    0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Parse([]byte(tc.payload))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := result.DurationSeconds(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if result.HasVideo() != tc.video {
				t.Fatalf("HasVideo = %v, want %v", result.HasVideo(), tc.video)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInspectRequiresPath(t *testing.T) {
	if _, err := Inspect(t.Context(), "ffprobe", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
