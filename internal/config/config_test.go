package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValues_TypedGetters(t *testing.T) {
	v := NewValues(map[string]string{
		"general.record":       "True",
		"general.logging":      "yes",
		"general.camera-index": "2",
		"opencv.lower-h":       "abc",
		"session.delay":        "250ms",
		"session.delay-ms":     "40",
		"session.bad":          "soon",
	})

	assert.True(t, v.Bool("general.record"))
	assert.False(t, v.Bool("general.logging"), "only \"true\" is true")
	assert.False(t, v.Bool("general.missing"))
	assert.Equal(t, 2, v.Int("general.camera-index"))
	assert.Equal(t, 0, v.Int("opencv.lower-h"), "malformed ints yield 0")
	assert.Equal(t, 250*time.Millisecond, v.Duration("session.delay"))
	assert.Equal(t, 40*time.Millisecond, v.Duration("session.delay-ms"))
	assert.Equal(t, time.Duration(0), v.Duration("session.bad"))
	assert.Equal(t, "", v.String("nope"))
	assert.True(t, v.Has("GENERAL.RECORD"), "keys are case-insensitive")
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"general.record":                         "GENERAL_RECORD",
		"groundstation.query-port":               "GROUNDSTATION_QUERY_PORT",
		"opencv.collision-box-horizontal-offset": "OPENCV_COLLISION_BOX_HORIZONTAL_OFFSET",
	}
	for key, want := range tests {
		assert.Equal(t, want, EnvName(key))
	}
}

func TestValues_ApplyEnv(t *testing.T) {
	v := NewValues(Defaults())
	env := map[string]string{
		"SIMULATOR_PORT":    "9000",
		"GENERAL_RECORD":    "false",
		"UNRELATED_SETTING": "x",
	}
	v.ApplyEnv(func(name string) (string, bool) {
		val, ok := env[name]
		return val, ok
	})

	assert.Equal(t, 9000, v.Int("simulator.port"))
	assert.False(t, v.Bool("general.record"))
	assert.False(t, v.Has("unrelated.setting"))
}

func TestFromValues_Defaults(t *testing.T) {
	cfg := FromValues(NewValues(Defaults()))

	assert.True(t, cfg.General.Record)
	assert.Equal(t, ModeSimulator, cfg.General.VideoSource)
	assert.Equal(t, 30, cfg.General.FPS)
	assert.Equal(t, [3]int{180, 255, 255}, cfg.OpenCV.Upper)
	assert.Equal(t, [3]int{0, 0, 0}, cfg.OpenCV.Lower)
	assert.Equal(t, 100, cfg.OpenCV.BoxWidth)
	assert.Equal(t, "127.0.0.1:1864", cfg.GroundStation.QueryAddr())
	assert.Equal(t, "127.0.0.1:2023", cfg.GroundStation.StreamAddr())
	assert.Equal(t, 3*time.Second, cfg.GroundStation.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.GroundStation.HeartbeatPeriod)
	assert.Equal(t, 1000*time.Second, cfg.GroundStation.StreamCooldown)
	assert.Equal(t, "127.0.0.1:5710", cfg.Simulator.Addr())
	assert.Equal(t, 100*time.Millisecond, cfg.Session.PowerPollInterval)
	assert.Equal(t, "restart", cfg.Session.OnError)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fps", func(c *Config) { c.General.FPS = 0 }},
		{"negative box", func(c *Config) { c.OpenCV.BoxWidth = -1 }},
		{"unknown policy", func(c *Config) { c.Session.OnError = "retry-forever" }},
		{"zero publish interval", func(c *Config) { c.GroundStation.PublishEvery = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromValues(NewValues(Defaults()))
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_EnvFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "pilot.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"GENERAL_VIDEO_SOURCE=file\nOPENCV_COLLISION_BOX_WIDTH=250\nSIMULATOR_PORT=6000\n",
	), 0o644))

	t.Setenv("SIMULATOR_PORT", "7000")

	cfg, values, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, ModeFile, cfg.General.VideoSource)
	assert.Equal(t, 250, cfg.OpenCV.BoxWidth)
	assert.Equal(t, 7000, cfg.Simulator.Port, "environment wins over the .env file")
	assert.Equal(t, "7000", values.String("simulator.port"))
}

func TestLoad_MissingEnvFile(t *testing.T) {
	cfg, _, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.OpenCV.BoxHeight)
}

func TestLoad_InvalidPolicy(t *testing.T) {
	t.Setenv("SESSION_ON_ERROR", "explode")

	_, _, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestDecode_MalformedNumbers(t *testing.T) {
	v := NewValues(Defaults())
	v.Set("opencv.collision-box-width", "1OO")
	v.Set("groundstation.retry-delay", "3 seconds")

	cfg, err := Decode(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opencv.collision-box-width")
	assert.Contains(t, err.Error(), "OPENCV_COLLISION_BOX_WIDTH")
	assert.Contains(t, err.Error(), `"1OO"`)
	assert.Contains(t, err.Error(), "groundstation.retry-delay")
	require.NotNil(t, cfg)
	assert.Equal(t, 100, cfg.OpenCV.BoxHeight, "well-formed fields are still decoded")

	_, err = Decode(NewValues(Defaults()))
	assert.NoError(t, err)
}

func TestLoad_MalformedNumbers(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
		key  string
	}{
		{"integer", "OPENCV_COLLISION_BOX_WIDTH", "1OO", "opencv.collision-box-width"},
		{"duration", "SESSION_RESTART_DELAY", "soon", "session.restart-delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)

			cfg, _, err := Load(filepath.Join(t.TempDir(), "absent.env"))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
