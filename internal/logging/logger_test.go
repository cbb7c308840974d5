package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeProductionModeIsNoOp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Config{DebugMode: false}))

	_, err := os.Stat(filepath.Join(dir, ".evolution", "logs"))
	require.True(t, os.IsNotExist(err), "no log directory should be created when debug_mode is false")

	// Logging calls must not panic even though nothing is enabled.
	Store("this should not be written anywhere")
}

func TestInitializeDebugModeWritesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Config{DebugMode: true, Level: "debug"}))
	defer CloseAll()

	Risk("scoring proposal %s", "p-1")
	RiskDebug("factor detail")

	entries, err := os.ReadDir(filepath.Join(dir, ".evolution", "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestCategoryDisabledSuppressesOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Config{
		DebugMode:  true,
		Categories: map[string]bool{string(CategoryRisk): false},
	}))
	defer CloseAll()

	require.False(t, IsCategoryEnabled(CategoryRisk))
	require.True(t, IsCategoryEnabled(CategoryScheduler))
}
