package ffmpeg

import (
	"bytes"
	"context"
	"os/exec"
	"slices"
	"testing"

	"creditscan/internal/segments"
)

func TestParseSilenceDetect(t *testing.T) {
	output := `Input #0, matroska,webm, from 'silence.ep.mkv':
[silencedetect @ 0x55d1] silence_start: 12.5
[silencedetect @ 0x55d1] silence_end: 15.25 | silence_duration: 2.75
size=N/A time=00:00:40.00 bitrate=N/A speed= 600x
[silencedetect @ 0x55d1] silence_start: -0.01
[silencedetect @ 0x55d1] silence_end: 3 | silence_duration: 3.01
[silencedetect @ 0x55d1] silence_start: 38.1
`
	got := ParseSilenceDetect(output)
	want := []segments.Segment{
		{Start: 12.5, End: 15.25, IsSilence: true},
		{Start: 0, End: 3, IsSilence: true},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseSilenceDetectIgnoresOrphanEnd(t *testing.T) {
	if got := ParseSilenceDetect("silence_end: 4.0 | silence_duration: 4.0\n"); len(got) != 0 {
		t.Fatalf("expected no segments, got %v", got)
	}
}

func TestAverageHash(t *testing.T) {
	frame := make([]byte, frameSize)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 200
		} else {
			frame[i] = 10
		}
	}
	hash := AverageHash(frame)
	if hash != 0x5555555555555555 {
		t.Fatalf("unexpected hash %016x", hash)
	}
	if AverageHash(make([]byte, frameSize)) != 0 {
		t.Fatal("flat frame should hash to zero")
	}
}

func TestReadFrameHashesDropsPartialFrame(t *testing.T) {
	var buf bytes.Buffer
	first := bytes.Repeat([]byte{0}, frameSize)
	first[0] = 255
	buf.Write(first)
	buf.Write(bytes.Repeat([]byte{7}, frameSize))
	buf.Write([]byte{1, 2, 3})

	hashes, err := ReadFrameHashes(&buf)
	if err != nil {
		t.Fatalf("ReadFrameHashes: %v", err)
	}
	if len(hashes) != 2 || hashes[0] != 1 || hashes[1] != 0 {
		t.Fatalf("unexpected hashes %v", hashes)
	}
}

func TestCutArgs(t *testing.T) {
	args := cutArgs("/tv/ep.mkv", 10, 70.5, false, true, 11025, "/tmp/intro.ep.mkv")
	for _, want := range []string{"-vn", "-ss", "10.000", "-t", "60.500", "-ar", "11025"} {
		if !slices.Contains(args, want) {
			t.Fatalf("expected %q in %v", want, args)
		}
	}
	if slices.Contains(args, "-an") {
		t.Fatalf("audio should be kept: %v", args)
	}
	if args[len(args)-1] != "/tmp/intro.ep.mkv" {
		t.Fatalf("destination must be last: %v", args)
	}
}

func TestCutRejectsEmptyRange(t *testing.T) {
	c := New("")
	if err := c.Cut(context.Background(), "in.mkv", 5, 5, true, true, 0, "out.mkv"); err == nil {
		t.Fatal("expected error for empty range")
	}
	if err := c.Cut(context.Background(), "in.mkv", 0, 5, false, false, 0, "out.mkv"); err == nil {
		t.Fatal("expected error when no streams requested")
	}
}

func TestDetectSilenceUsesCommandOutput(t *testing.T) {
	original := commandContext
	t.Cleanup(func() { commandContext = original })
	commandContext = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", "echo 'silence_start: 1.5' >&2; echo 'silence_end: 4 | silence_duration: 2.5' >&2")
	}

	got, err := New("ffmpeg").DetectSilence(context.Background(), "clip.mkv", 2, -55)
	if err != nil {
		t.Fatalf("DetectSilence: %v", err)
	}
	if len(got) != 1 || got[0].Start != 1.5 || got[0].End != 4 {
		t.Fatalf("unexpected silence %v", got)
	}
}
