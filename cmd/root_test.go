package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/internal/config"
)

// testConfig installs a minimal config backed by a temp SQLite file.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "classifier.db")
	c.Enrichment.Skip = true
	c.Queue.Workers = 2
	c.Queue.IdleDelayMs = 10
	c.Rules.BatchSize = 100
	c.AI.AcceptThreshold = 70
	c.AI.BatchSize = 20
	c.AI.MaxAttempts = 2
	cfg = c
	t.Cleanup(func() { cfg = nil })
	return c
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"import", "advance", "run", "worker", "serve", "status", "jobs", "override", "cache"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "classifier", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestImportCommand_Flags(t *testing.T) {
	file := importCmd.Flags().Lookup("file")
	require.NotNil(t, file, "import command should have --file flag")

	lang := importCmd.Flags().Lookup("lang")
	require.NotNil(t, lang)
	assert.Equal(t, "fr", lang.DefValue)
}

func TestRunCommand_Flags(t *testing.T) {
	require.NotNil(t, runCmd.Flags().Lookup("file"))
	poll := runCmd.Flags().Lookup("poll")
	require.NotNil(t, poll)
	assert.Equal(t, "1s", poll.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestAdvanceCommand_RequiresJobID(t *testing.T) {
	assert.Error(t, advanceCmd.Args(advanceCmd, nil))
	assert.NoError(t, advanceCmd.Args(advanceCmd, []string{"job-1"}))
}

func TestCacheCommand_HasPurge(t *testing.T) {
	var names []string
	for _, c := range cacheCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "purge")
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mysql"

	_, err := initStore(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_SQLiteMigrates(t *testing.T) {
	testConfig(t)

	st, err := initStore(t.Context())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	jobs, err := st.ListJobs(t.Context(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
