package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogVerbose(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{name: "verbose", verbose: true, want: "> Opening http://example.com...\n"},
		{name: "quiet", verbose: false, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			logger := New("harness", Options{Out: &out, Verbose: tt.verbose})

			logger.Log("Opening %s...", "http://example.com")
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestEchoSilent(t *testing.T) {
	var out bytes.Buffer

	New("harness", Options{Out: &out}).Echo("report")
	assert.Equal(t, "report\n", out.String())

	out.Reset()
	New("harness", Options{Out: &out, Silent: true}).Echo("report")
	assert.Empty(t, out.String())
}

func TestSilentDoesNotHideVerboseLog(t *testing.T) {
	var out bytes.Buffer
	logger := New("harness", Options{Out: &out, Verbose: true, Silent: true})

	logger.Log("diagnostic")
	logger.Echo("report")

	assert.Equal(t, "> diagnostic\n", out.String())
}

func TestLevelMethodsStayOffOutput(t *testing.T) {
	var out bytes.Buffer
	logger := New("harness", Options{Out: &out, Verbose: true})

	logger.Debugf("debug %d", 1)
	logger.Infof("info")
	logger.Warnf("warn")
	logger.Errorf("error")

	assert.Empty(t, out.String())
}

func TestFileLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger := New("harness", Options{Out: &bytes.Buffer{}, File: path})
	logger.Log("Opening %s...", "http://example.com")
	logger.Named("requestsMonitor").Warnf("slow response")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	assert.Equal(t, path, logger.LogPath())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	assert.Contains(t, lines[0], "[INFO]")
	assert.Contains(t, lines[0], "[harness]")
	assert.Contains(t, lines[0], "Opening http://example.com...")
	assert.Contains(t, lines[0], logger.RunID())

	assert.Contains(t, lines[1], "[WARN]")
	assert.Contains(t, lines[1], "[harness.requestsMonitor]")
}

func TestNamedSharesOutput(t *testing.T) {
	var out bytes.Buffer
	logger := New("harness", Options{Out: &out, Verbose: true})
	child := logger.Named("domComplexity")

	child.Log("from module")
	assert.Equal(t, "> from module\n", out.String())
	assert.Equal(t, logger.RunID(), child.RunID())
}

func TestConcurrentWrites(t *testing.T) {
	var out bytes.Buffer
	logger := New("harness", Options{Out: &out, Verbose: true})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log("line")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, strings.Count(out.String(), "> line\n"))
}

func TestRunIDStable(t *testing.T) {
	assert.NotEmpty(t, GetRunID())
	assert.Equal(t, GetRunID(), New("a", Options{}).RunID())
	assert.Equal(t, GetRunID(), Nop().RunID())
}
