package scanner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecCommand makes FFProbe run this test binary, which prints output
// and exits with failure when fail is set.
func fakeExecCommand(t *testing.T, output string, fail bool) {
	t.Helper()
	original := execCommandContext
	execCommandContext = func(ctx context.Context, command string, args ...string) *exec.Cmd {
		assert.Equal(t, "ffprobe", command)
		cs := []string{"-test.run=TestHelperProcess", "--", command}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_PROCESS_STDOUT=%s", output),
		}
		if fail {
			cmd.Env = append(cmd.Env, "GO_HELPER_PROCESS_FAIL=1")
		}
		return cmd
	}
	t.Cleanup(func() { execCommandContext = original })
}

// TestHelperProcess isn't a real test; it stands in for ffprobe
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("GO_HELPER_PROCESS_STDOUT"))
	if os.Getenv("GO_HELPER_PROCESS_FAIL") == "1" {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestFFProbe_Probe(t *testing.T) {
	tests := []struct {
		name   string
		output string
		fail   bool
		want   string
	}{
		{"rounds to whole seconds", `{"format":{"duration":"125.6"}}`, false, "126"},
		{"integral duration", `{"format":{"duration":"60.000000"}}`, false, "60"},
		{"missing duration", `{"format":{}}`, false, ""},
		{"invalid json", `not json`, false, ""},
		{"non numeric", `{"format":{"duration":"N/A"}}`, false, ""},
		{"command fails", ``, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeExecCommand(t, tt.output, tt.fail)
			p := NewFFProbe("", 5*time.Second, nil)
			assert.Equal(t, tt.want, p.Probe(context.Background(), "/media/lesson.mp4"))
		})
	}
}

func TestCachedProbe(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.mp4")
	path := filepath.Join(dir, "a.mp4")

	inner := &countingProbe{duration: "90"}
	cached, err := NewCachedProbe(inner, 8)
	require.NoError(t, err)

	assert.Equal(t, "90", cached.Probe(context.Background(), path))
	assert.Equal(t, "90", cached.Probe(context.Background(), path))
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, cached.Len())

	// A modified file is probed again
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	cached.Probe(context.Background(), path)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedProbe_FailuresAreNotCached(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "broken.mp4")
	path := filepath.Join(dir, "broken.mp4")

	inner := &countingProbe{duration: ""}
	cached, err := NewCachedProbe(inner, 8)
	require.NoError(t, err)

	assert.Equal(t, "", cached.Probe(context.Background(), path))
	assert.Equal(t, "", cached.Probe(context.Background(), path))
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, cached.Len())
}
