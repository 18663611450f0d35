package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	yaml := `
power_cap:
  enabled: true
  target_mw: 20000
log:
  level: debug
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.True(t, cfg.PowerCap.Enabled)
	assert.Equal(t, 20000, cfg.PowerCap.TargetMW)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, 32, cfg.Pipeline.SetupBudget)
}

func TestValidateRejectsNonPositiveBudget(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.SetupBudget = 0
	assert.Error(t, cfg.Validate())
}

func TestFromFileMissingYieldsDefaults(t *testing.T) {
	cfg, err := FromFile("/nonexistent/path/pacctd.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
