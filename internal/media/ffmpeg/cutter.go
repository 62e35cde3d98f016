package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"creditscan/internal/segments"
)

var commandContext = exec.CommandContext

// Cutter wraps an ffmpeg binary.
type Cutter struct {
	binary string
}

// New returns a Cutter for binary, defaulting to "ffmpeg" on PATH.
func New(binary string) *Cutter {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Cutter{binary: binary}
}

// Binary returns the ffmpeg command in use.
func (c *Cutter) Binary() string {
	return c.binary
}

// Cut extracts [start, end) of src into dst. Video is re-encoded at low
// quality and audio downmixed to mono at sampleRate; either may be dropped.
func (c *Cutter) Cut(ctx context.Context, src string, start, end float64, wantVideo, wantAudio bool, sampleRate int, dst string) error {
	if end <= start {
		return fmt.Errorf("ffmpeg cut: empty range [%.3f, %.3f)", start, end)
	}
	if !wantVideo && !wantAudio {
		return errors.New("ffmpeg cut: neither audio nor video requested")
	}
	args := cutArgs(src, start, end, wantVideo, wantAudio, sampleRate, dst)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg cut: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func cutArgs(src string, start, end float64, wantVideo, wantAudio bool, sampleRate int, dst string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(end - start),
		"-sn",
		"-dn",
	}
	if wantVideo {
		args = append(args, "-map", "0:v:0?", "-c:v", "libx264", "-preset", "ultrafast", "-crf", "28", "-vf", "scale=-2:240")
	} else {
		args = append(args, "-vn")
	}
	if wantAudio {
		args = append(args, "-map", "0:a:0?", "-ac", "1", "-c:a", "pcm_s16le")
		if sampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(sampleRate))
		}
	} else {
		args = append(args, "-an")
	}
	return append(args, dst)
}

// DetectSilence runs silencedetect over clip and returns silent stretches of
// at least minDuration seconds below thresholdDb, in clip time.
func (c *Cutter) DetectSilence(ctx context.Context, clip string, minDuration, thresholdDb float64) ([]segments.Segment, error) {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", clip,
		"-vn",
		"-af", fmt.Sprintf("silencedetect=noise=%sdB:d=%s", formatSeconds(thresholdDb), formatSeconds(minDuration)),
		"-f", "null",
		"-",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect: %w: %s", err, lastLine(string(output)))
	}
	return ParseSilenceDetect(string(output)), nil
}

// VideoFrameHashes decodes clip at fps frames per second, downscaled to 8x8
// grayscale, and returns one average hash per frame.
func (c *Cutter) VideoFrameHashes(ctx context.Context, clip string, fps float64) ([]uint64, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("ffmpeg frame hashes: invalid frame rate %v", fps)
	}
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", clip,
		"-an",
		"-vf", fmt.Sprintf("fps=%s,scale=%d:%d:flags=area,format=gray", formatSeconds(fps), hashSide, hashSide),
		"-f", "rawvideo",
		"-",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame hashes: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame hashes: %w", err)
	}
	hashes, readErr := ReadFrameHashes(stdout)
	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg frame hashes: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	if readErr != nil {
		return nil, fmt.Errorf("ffmpeg frame hashes: %w", readErr)
	}
	return hashes, nil
}

const (
	hashSide  = 8
	frameSize = hashSide * hashSide
)

// ReadFrameHashes consumes 8x8 gray frames from r until EOF. A trailing
// partial frame is ignored.
func ReadFrameHashes(r io.Reader) ([]uint64, error) {
	reader := bufio.NewReader(r)
	frame := make([]byte, frameSize)
	var hashes []uint64
	for {
		_, err := io.ReadFull(reader, frame)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return hashes, nil
		}
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, AverageHash(frame))
	}
}

// AverageHash sets bit i when pixel i is brighter than the frame mean.
func AverageHash(pixels []byte) uint64 {
	if len(pixels) == 0 {
		return 0
	}
	var sum int
	for _, p := range pixels {
		sum += int(p)
	}
	var hash uint64
	for i, p := range pixels {
		if i >= 64 {
			break
		}
		if int(p)*len(pixels) > sum {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func lastLine(output string) string {
	output = strings.TrimSpace(output)
	if idx := strings.LastIndexByte(output, '\n'); idx >= 0 {
		return output[idx+1:]
	}
	return output
}
