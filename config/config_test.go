package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []int{1}, cfg.Server.Zones)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 50*time.Millisecond, cfg.Perception.TickInterval())
	assert.Equal(t, perception.DefaultSightConfig(), cfg.Perception.Sight)
	assert.Equal(t, perception.DefaultHearingConfig(), cfg.Perception.Hearing)
	assert.Equal(t, 15*time.Second, cfg.Driver.SearchTimeout)
	assert.Equal(t, time.Second, cfg.Journal.FlushInterval)
	assert.Equal(t, 12*time.Hour, cfg.Security.JWTTTLH)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
perception:
  sense_every_ticks: 2
  sight:
    radius: 500
    lose_radius: 800
    peripheral_angle_deg: 60
    filter:
      friendlies: false
  hearing:
    range: 1000
    filter:
      neutrals: false
driver:
  search_timeout: 3s
security:
  admin_ips: ["10.0.0.0/8"]
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Perception.SenseEveryTicks)
	assert.Equal(t, 500.0, cfg.Perception.Sight.Radius)
	assert.Equal(t, 800.0, cfg.Perception.Sight.LoseRadius)
	assert.False(t, cfg.Perception.Sight.Filter.Friendlies)
	assert.True(t, cfg.Perception.Sight.Filter.Enemies)
	assert.False(t, cfg.Perception.Hearing.Filter.Neutrals)
	assert.Equal(t, 3*time.Second, cfg.Driver.SearchTimeout)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Security.AdminIPs)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "perception:\n  sight:\n    radius: 3000\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, perception.ErrInvalidLoseRadius)

	_, err = Load(writeConfig(t, "database:\n  mode: oracle\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "perception:\n  hearing:\n    dominant: true\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
