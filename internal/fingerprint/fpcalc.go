package fingerprint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// AudioFrameSeconds is the duration covered by one chromaprint hash
// (4096-sample frames with 2/3 overlap at 11025 Hz).
const AudioFrameSeconds = 4096.0 / 3.0 / 11025.0

// Fpcalc computes raw chromaprint hashes.
type Fpcalc struct {
	binary string
}

// NewFpcalc returns an audio hasher for binary, defaulting to "fpcalc".
func NewFpcalc(binary string) *Fpcalc {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "fpcalc"
	}
	return &Fpcalc{binary: binary}
}

// AudioHashes returns the raw fingerprint of clip.
func (f *Fpcalc) AudioHashes(ctx context.Context, clip string) ([]uint64, error) {
	cmd := commandContext(ctx, f.binary, "-raw", "-length", "0", clip) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("fpcalc: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("fpcalc: %w", err)
	}
	return ParseRaw(string(output))
}

// ParseRaw extracts the FINGERPRINT= line of fpcalc -raw output.
func ParseRaw(output string) ([]uint64, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, ok := strings.CutPrefix(line, "FINGERPRINT=")
		if !ok {
			continue
		}
		if value == "" {
			return nil, ErrNoHashes
		}
		fields := strings.Split(value, ",")
		hashes := make([]uint64, 0, len(fields))
		for _, field := range fields {
			n, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("fpcalc: bad hash %q: %w", field, err)
			}
			// -signed output is folded back to the unsigned 32-bit value.
			hashes = append(hashes, uint64(uint32(n)))
		}
		return hashes, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fpcalc: %w", err)
	}
	return nil, ErrNoHashes
}
