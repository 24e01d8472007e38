package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, "low", c.Analysis.SeverityThreshold)
	assert.Equal(t, 4, c.Analysis.Workers)
	assert.Contains(t, c.Analysis.Extensions, ".ts")
	assert.Contains(t, c.Analysis.Exclude, "node_modules")
	assert.Equal(t, 12*time.Hour, c.Server.SessionTTL)
	assert.Equal(t, []string{"json", "html"}, c.Reporting.Formats)
	assert.Contains(t, c.Database.DSN, "mongo-safe.db")
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  dsn: ./data/ms.db
analysis:
  severity_threshold: medium
  workers: 2
  disabled_rules: [MONGO-ALLOW-DISK-USE]
server:
  session_ttl: 30m
`), 0o644))

	t.Setenv("MONGOSAFE_ANALYSIS_WORKERS", "6")
	t.Setenv("MONGOSAFE_ANALYSIS_DISABLED_RULES", "MONGO-A,MONGO-B")

	c, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "./data/ms.db", c.Database.DSN)
	assert.Equal(t, "medium", c.Analysis.SeverityThreshold)
	assert.Equal(t, 6, c.Analysis.Workers)
	assert.Equal(t, []string{"MONGO-A", "MONGO-B"}, c.Analysis.DisabledRules)
	assert.Equal(t, 30*time.Minute, c.Server.SessionTTL)
}

func TestLoadConfig_TOML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(p, []byte("[reporting]\nout_dir = \"out\"\nformats = [\"sarif\"]\n"), 0o644))
	c, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "out", c.Reporting.OutDir)
	assert.Equal(t, []string{"sarif"}, c.Reporting.Formats)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	l, err := InitLogger("json", "debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = InitLogger("text", "bogus")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
