// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigscope/internal/config"
	"sigscope/internal/testutil"
)

func TestParseArgsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs([]string{"capture.wav"})
	require.NoError(t, err)
	assert.Equal(t, CommandRun, opts.Command)

	want := config.Default()
	want.Source.File = "capture.wav"
	assert.Equal(t, want, opts.Config)
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: warn
source:
  file: from-config.wav
  window_size: 256
gate:
  level_db: -30
`), 0o644))

	opts, err := ParseArgs([]string{
		"-c", path,
		"-w", "1024",
		"--fft-window", "Blackman",
		"--gate",
		"--ws", "127.0.0.1:0",
		"--mqtt", "tcp://broker:1883",
		"-o", "out.wav",
		"-v",
	})
	require.NoError(t, err)
	cfg := opts.Config

	assert.Equal(t, "from-config.wav", cfg.Source.File)
	assert.Equal(t, 1024, cfg.Source.WindowSize)
	assert.Equal(t, "Blackman", cfg.Source.FFTWindow)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Gate.Enabled)
	assert.Equal(t, -30.0, cfg.Gate.LevelDB)
	assert.True(t, cfg.Transport.WebSocketEnabled)
	assert.Equal(t, "127.0.0.1:0", cfg.Transport.WebSocketAddress)
	assert.True(t, cfg.Transport.MQTTEnabled)
	assert.Equal(t, "tcp://broker:1883", cfg.Transport.MQTTBroker)
	assert.False(t, cfg.Transport.UDPEnabled)
	assert.True(t, cfg.Recording.Enabled)
	assert.Equal(t, "out.wav", cfg.Recording.File)
}

func TestParseArgsErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"bad window", []string{"-w", "0", "a.wav"}},
		{"bad taper", []string{"--fft-window", "kaiser", "a.wav"}},
		{"bad format", []string{"--format", "flac", "a.wav"}},
		{"two files", []string{"a.wav", "b.wav"}},
		{"unknown flag", []string{"--device", "1", "a.wav"}},
		{"missing config", []string{"-c", "nope.yaml", "a.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseArgsHelp(t *testing.T) {
	opts, err := ParseArgs([]string{"--help"})
	require.NoError(t, err)
	assert.Empty(t, opts.Command)
	assert.Nil(t, opts.Config)
}

func TestInfo(t *testing.T) {
	t.Chdir(t.TempDir())
	path := testutil.WriteWAV(t, "iq.wav", 48000, 16, 2, testutil.Ramp(64))

	opts, err := ParseArgs([]string{"info", "--format", "stereo", "-w", "16", path})
	require.NoError(t, err)
	require.Equal(t, CommandInfo, opts.Command)

	var out bytes.Buffer
	require.NoError(t, Info(&out, opts.Config))
	assert.Contains(t, out.String(), "Layout:      iq")
	assert.Contains(t, out.String(), "Sample rate: 48000 Hz")
	assert.Contains(t, out.String(), "Window:      16 samples (Hann)")
	assert.Contains(t, out.String(), "Resolution:  3000.000 Hz/bin")
}

func TestInfoRawWithoutSuffix(t *testing.T) {
	t.Chdir(t.TempDir())
	path := testutil.WriteRaw(t, "capture.bin", testutil.Tone(8, 1000, 0, 1))

	opts, err := ParseArgs([]string{"info", "--format", "raw", "-w", "8", path})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Info(&out, opts.Config))
	assert.Contains(t, out.String(), "Layout:      iq")
	assert.Contains(t, out.String(), "Sample rate: 250000 Hz")
}

func TestInfoMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Source.File = filepath.Join(t.TempDir(), "missing.wav")
	assert.Error(t, Info(&bytes.Buffer{}, cfg))
}
