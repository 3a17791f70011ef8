package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/iaqmon/cmd/iaqmon/console"
	"github.com/mklimuk/iaqmon/config"
	"github.com/mklimuk/iaqmon/engine/emulator"
	"github.com/mklimuk/iaqmon/i2c"
	"github.com/mklimuk/iaqmon/state"
)

func captureConsole(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	color.NoColor = true
	var out, errOut bytes.Buffer
	console.SetOutput(&out, &errOut)
	t.Cleanup(func() { console.SetOutput(os.Stdout, os.Stderr) })
	return &out, &errOut
}

func TestFanout(t *testing.T) {
	var debug, info bytes.Buffer
	h := newFanout(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).With("component", "scheduler")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger.Debug("late wake")
	logger.Info("summary", "cycles", 100)

	assert.Contains(t, debug.String(), "msg=\"late wake\" component=scheduler")
	assert.Contains(t, debug.String(), "msg=summary component=scheduler cycles=100")
	assert.NotContains(t, info.String(), "late wake")
	assert.Contains(t, info.String(), "msg=summary component=scheduler cycles=100")
}

func TestFanout_Single(t *testing.T) {
	h := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Same(t, h, newFanout(h, nil))
}

func TestFileHandler(t *testing.T) {
	h, closer, err := fileHandler(config.Log{})
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Nil(t, closer)

	path := filepath.Join(t.TempDir(), "logs", "log")
	h, closer, err = fileHandler(config.Log{File: path, MaxSizeMB: 5, MaxBackups: 3, Level: "debug"})
	require.NoError(t, err)
	slog.New(h).Debug("state saved", "bytes", 12)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "state saved")
	assert.Contains(t, string(data), "bytes=12")

	_, _, err = fileHandler(config.Log{File: path, Level: "loud"})
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.Backend = config.BackendSimulated
	bus, err := newTransport(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	id, err := probe(bus, cfg.Sensor.Device, cfg.Sensor.Address)
	require.NoError(t, err)
	assert.Equal(t, byte(emulator.ChipID), id)
	assert.False(t, bus.IsOpened())

	sensor := emulator.NewSensor(nil)
	sensor.FailNext(1)
	_, err = probe(i2c.NewTransport(sensor.Opener()), cfg.Sensor.Device, cfg.Sensor.Address)
	assert.ErrorContains(t, err, "could not read chip id")
}

func TestNewTransport_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.Backend = "uart"
	_, err := newTransport(cfg, slog.Default())
	assert.Error(t, err)

	cfg.Sensor.Engine = "vendor"
	_, err = newEngine(cfg)
	assert.Error(t, err)
}

func TestOverrideBackend(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, overrideBackend(cfg, ""))
	assert.Equal(t, config.BackendLinux, cfg.Sensor.Backend)
	require.NoError(t, overrideBackend(cfg, "Simulated"))
	assert.Equal(t, config.BackendSimulated, cfg.Sensor.Backend)
	assert.Error(t, overrideBackend(cfg, "uart"))
}

func TestStateCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _ := captureConsole(t)

	require.Equal(t, 0, run([]string{"iaqmon", "state", "show"}))
	assert.Contains(t, out.String(), "no saved state")

	store := state.NewFileStore(filepath.Join("saved_state", "bsec_state_file"))
	require.NoError(t, store.Save([]byte{0x45, 0x4d, 0x55, 0x31}))
	out.Reset()
	require.Equal(t, 0, run([]string{"iaqmon", "state", "show"}))
	assert.Contains(t, out.String(), "4 of 221 bytes")
	assert.Contains(t, out.String(), "45 4d 55 31")

	require.Equal(t, 0, run([]string{"iaqmon", "state", "clear", "--yes"}))
	assert.NoFileExists(t, store.Path())
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	_, errOut := captureConsole(t)
	path := filepath.Join(dir, "iaqmon.yaml")

	require.Equal(t, 0, run([]string{"iaqmon", "--config", path, "config", "init"}))
	assert.FileExists(t, path)
	assert.Equal(t, 1, run([]string{"iaqmon", "--config", path, "config", "init"}))
	assert.Contains(t, errOut.String(), "already exists")
}

func TestBusProbeCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _ := captureConsole(t)
	require.Equal(t, 0, run([]string{"iaqmon", "bus", "probe", "--backend", "simulated"}))
	assert.Contains(t, out.String(), "gas sensor found at /dev/i2c-1/0x77")
}
