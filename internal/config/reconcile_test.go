package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyReconcileConfig_Defaults(t *testing.T) {
	cfg := EmptyReconcileConfig()

	assert.Equal(t, runtime.NumCPU(), cfg.GetWorkers())
	assert.Equal(t, 0, cfg.GetMinRegionArea())
	_, ok := cfg.GetGrowthDistance()
	assert.False(t, ok)
	assert.True(t, cfg.GetTruncateDistance())
	assert.False(t, cfg.GetRelabelInputs())
	assert.Equal(t, 1.0, cfg.GetErodeWidth())
}

func TestGetWorkers_NonPositiveFallsBackToCPUCount(t *testing.T) {
	for _, n := range []int{0, -1, -64} {
		cfg := DefaultReconcileConfig()
		cfg.Workers = ptrInt(n)
		assert.Equal(t, runtime.NumCPU(), cfg.GetWorkers(), "workers=%d", n)
	}
	cfg := DefaultReconcileConfig()
	cfg.Workers = ptrInt(3)
	assert.Equal(t, 3, cfg.GetWorkers())
}

func TestDefaultReconcileConfig_MatchesAccessorDefaults(t *testing.T) {
	def := DefaultReconcileConfig()
	empty := EmptyReconcileConfig()

	assert.Equal(t, empty.GetMinRegionArea(), def.GetMinRegionArea())
	assert.Equal(t, empty.GetTruncateDistance(), def.GetTruncateDistance())
	assert.Equal(t, empty.GetRelabelInputs(), def.GetRelabelInputs())
	assert.Equal(t, empty.GetErodeWidth(), def.GetErodeWidth())
	require.NoError(t, def.Validate())
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.True(t, cfg.GetTruncateDistance())
	assert.Equal(t, 1.0, cfg.GetErodeWidth())
}

func TestLoadReconcileConfig_Partial(t *testing.T) {
	path := writeConfig(t, "run.json", `{"workers": 3, "growth_distance": 2.5}`)

	cfg, err := LoadReconcileConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.GetWorkers())
	d, ok := cfg.GetGrowthDistance()
	assert.True(t, ok)
	assert.Equal(t, 2.5, d)
	assert.True(t, cfg.GetTruncateDistance(), "unset field keeps its default")
}

func TestLoadReconcileConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "run.yaml", `{}`, ".json extension"},
		{"bad json", "run.json", `{"workers":`, "parse config JSON"},
		{"negative workers", "run.json", `{"workers": -1}`, "workers must be non-negative"},
		{"negative distance", "run.json", `{"growth_distance": -2}`, "growth_distance"},
		{"negative erode", "run.json", `{"erode_width": -1}`, "erode_width"},
		{"negative min area", "run.json", `{"min_region_area": -4}`, "min_region_area"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReconcileConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadReconcileConfig_Missing(t *testing.T) {
	_, err := LoadReconcileConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat config file")
}

func TestLoadReconcileConfig_TooLarge(t *testing.T) {
	body := `{"workers": 1` + strings.Repeat(" ", 1024*1024) + `}`
	_, err := LoadReconcileConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMerge(t *testing.T) {
	base := DefaultReconcileConfig()
	override := EmptyReconcileConfig()
	override.Workers = ptrInt(2)
	override.TruncateDistance = ptrBool(false)

	base.Merge(override)
	base.Merge(nil)

	assert.Equal(t, 2, base.GetWorkers())
	assert.False(t, base.GetTruncateDistance())
	assert.Equal(t, 1.0, base.GetErodeWidth())
}
