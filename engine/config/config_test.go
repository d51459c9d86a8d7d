package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FramesInFlight, cfg.Render.FramesInFlight)
	assert.Equal(t, "target/shaders", cfg.Render.ShaderDir)
	assert.True(t, cfg.Debug.CheckGenerations)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armada.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
name = "fleet"

[render]
present_mode = "fifo"
clear_color = [0.1, 0.2, 0.3, 1.0]

[log]
level = "trace"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fleet", cfg.App.Name)
	assert.Equal(t, uint32(1280), cfg.App.Width)
	assert.Equal(t, PresentModeFIFO, cfg.Render.PresentMode)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.Render.ClearColor)
	assert.Equal(t, "trace", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"frames":  "[render]\nframes_in_flight = 3\n",
		"present": "[render]\npresent_mode = \"immediate\"\n",
		"color":   "[render]\nclear_color = [2.0, 0.0, 0.0, 1.0]\n",
		"level":   "[log]\nlevel = \"loud\"\n",
		"unknown": "[render]\nshadows = true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "armada.toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestReloadableContextRoundTrip(t *testing.T) {
	r := Reloadable{LogLevel: "debug", ClearColor: [4]float32{0, 0.5, 1, 1}}
	assert.Equal(t, r, ReloadableFromContext(ReloadedContext(r)))
}

func TestWatcherPostsReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "armada.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	bus := core.NewEventBus()
	var got []Reloadable
	bus.Register(core.EVENT_CODE_CONFIG_RELOADED, t, func(_ core.SystemEventCode, _, _ interface{}, ctx core.EventContext) bool {
		got = append(got, ReloadableFromContext(ctx))
		return true
	})

	w, err := NewWatcher(path, bus)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644))
	require.Eventually(t, func() bool {
		bus.Drain()
		return len(got) > 0 && got[len(got)-1].LogLevel == "debug"
	}, 5*time.Second, 20*time.Millisecond)
}
