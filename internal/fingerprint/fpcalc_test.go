package fingerprint

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"testing"
)

func TestParseRaw(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    []uint64
		wantErr error
	}{
		{
			name:   "unsigned",
			output: "DURATION=60\nFINGERPRINT=1,2,4294967295\n",
			want:   []uint64{1, 2, 4294967295},
		},
		{
			name:   "signed",
			output: "DURATION=60\nFINGERPRINT=-1,5\n",
			want:   []uint64{4294967295, 5},
		},
		{
			name:    "empty",
			output:  "DURATION=0\nFINGERPRINT=\n",
			wantErr: ErrNoHashes,
		},
		{
			name:    "missing",
			output:  "DURATION=0\n",
			wantErr: ErrNoHashes,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRaw(tc.output)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRaw: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFpcalcRunsBinary(t *testing.T) {
	original := commandContext
	t.Cleanup(func() { commandContext = original })
	var gotArgs []string
	commandContext = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		gotArgs = args
		return exec.CommandContext(ctx, "sh", "-c", "printf 'DURATION=3\\nFINGERPRINT=7,8,9\\n'")
	}

	hashes, err := NewFpcalc("").AudioHashes(context.Background(), "intro.ep.mkv")
	if err != nil {
		t.Fatalf("AudioHashes: %v", err)
	}
	if !slices.Equal(hashes, []uint64{7, 8, 9}) {
		t.Fatalf("unexpected hashes %v", hashes)
	}
	if !slices.Contains(gotArgs, "-raw") || gotArgs[len(gotArgs)-1] != "intro.ep.mkv" {
		t.Fatalf("unexpected args %v", gotArgs)
	}
}
