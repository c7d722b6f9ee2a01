package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movi-dev/movi/internal/ledger"
	"github.com/movi-dev/movi/internal/runlog"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "init", dir))

	for _, d := range []string{"mail", "logs"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir())
	}
	for _, f := range []string{"movi.yaml", "categories.csv", "ledger.csv"} {
		_, err := os.Stat(filepath.Join(dir, f))
		require.NoError(t, err, "file %s should exist", f)
	}
}

func TestInit_Config(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "init", dir))

	data, err := os.ReadFile(filepath.Join(dir, "movi.yaml"))
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "store: csv")
	assert.Contains(t, contents, "clp_per_usd:")
}

func TestOpenApp_WiresLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(dir))

	a, err := openApp(dir)
	require.NoError(t, err)
	defer a.Close()

	movements, err := a.ledger.All()
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestOpenApp_MissingConfig(t *testing.T) {
	_, err := openApp(t.TempDir())
	assert.Error(t, err)
}

func TestRun_IngestsDroppedMail(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(dir))

	mail := "Se realizó una compra por $23.320 en LAS LOMAS el 01/06/2025 14:30"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mail", "msg-001.txt"), []byte(mail), 0o644))

	require.NoError(t, execute(t, "run", "--dir", dir))

	store, err := ledger.NewCSVStore(dir)
	require.NoError(t, err)
	defer store.Close()
	movements, err := store.All()
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "msg-001.txt", movements[0].SourceEventID)
	assert.Equal(t, "LAS LOMAS", movements[0].SourceDescription)

	entries, err := runlog.Read(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Re-running is idempotent: the same mail is skipped.
	require.NoError(t, execute(t, "run", "--dir", dir))
	movements, err = store.All()
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestValidate_CleanLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(dir))

	assert.NoError(t, execute(t, "validate", "--dir", dir))
}

func TestLog_NoRuns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(dir))

	assert.NoError(t, execute(t, "log", "--dir", dir))
}
