package config

import (
	"os"
	"path/filepath"
	"testing"

	"insight-stream/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
name: "InsightStream"
host: "127.0.0.1"
port: 8765
storage:
  db_type: "sqlite"
  db_path: "test.db"
`

// -----------------------------------------------------------------------------

func TestNewConfig_AppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Broadcast.CadenceSeconds)
	assert.Equal(t, 2000, cfg.Broadcast.SendTimeoutMillis)
	assert.Equal(t, 256, cfg.Broadcast.ClientQueueDepth)
	assert.Equal(t, 32, cfg.Broadcast.HistoryDepth)
	assert.Equal(t, 30, cfg.Broadcast.RefreshTimeoutSeconds)
	assert.Equal(t, 4, cfg.Dedup.SuccessTTLSeconds)
	assert.Equal(t, 1, cfg.Dedup.FailureTTLSeconds)
	assert.Equal(t, 10, cfg.Storage.QueryTimeoutSeconds)
	assert.Equal(t, 30, cfg.Storage.WindowDays)
	assert.False(t, cfg.Broadcast.SkipWhenIdle, "recompute with zero subscribers by default")
	assert.ElementsMatch(t, []string{"sales_overview", "product_insights", "customer_behavior"}, cfg.Kinds)
}

// -----------------------------------------------------------------------------

func TestNewConfig_TrackedKinds(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalConfig+`
kinds:
  - sales_overview
`))
	require.NoError(t, err)

	assert.Equal(t, []models.MSnapshotKind{models.KindSalesOverview}, cfg.TrackedKinds())
}

// -----------------------------------------------------------------------------

func TestNewConfig_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "missing name",
			yaml: `
host: "127.0.0.1"
port: 8765
storage: {db_type: "sqlite", db_path: "x.db"}
`,
		},
		{
			name: "privileged port",
			yaml: `
name: "t"
host: "127.0.0.1"
port: 80
storage: {db_type: "sqlite", db_path: "x.db"}
`,
		},
		{
			name: "sqlite without path",
			yaml: `
name: "t"
host: "127.0.0.1"
port: 8765
storage: {db_type: "sqlite"}
`,
		},
		{
			name: "postgres without connection string",
			yaml: `
name: "t"
host: "127.0.0.1"
port: 8765
storage: {db_type: "postgres"}
`,
		},
		{
			name: "failure TTL exceeds success TTL",
			yaml: minimalConfig + `
dedup:
  success_ttl_seconds: 2
  failure_ttl_seconds: 5
`,
		},
		{
			name: "business days without calendar",
			yaml: minimalConfig + `
broadcast:
  business_days_only: true
`,
		},
		{
			name: "unknown kind",
			yaml: minimalConfig + `
kinds:
  - sales_overview
  - weather
`,
		},
		{
			name: "analytics enabled without base url",
			yaml: minimalConfig + `
analytics:
  enabled: true
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

// -----------------------------------------------------------------------------

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestConfig_SaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(out))

	reloaded, err := NewConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, reloaded.Name)
	assert.Equal(t, cfg.Storage.DBPath, reloaded.Storage.DBPath)
	assert.Equal(t, cfg.Broadcast.CadenceSeconds, reloaded.Broadcast.CadenceSeconds)
}
