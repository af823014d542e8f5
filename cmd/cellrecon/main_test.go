package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colm-brandon-ul/cellmaps/internal/labels"
	"github.com/colm-brandon-ul/cellmaps/internal/maskio"
	"github.com/colm-brandon-ul/cellmaps/internal/monitoring"
	"github.com/colm-brandon-ul/cellmaps/internal/runstore"
	"github.com/colm-brandon-ul/cellmaps/internal/testutil"
)

func writeMasks(t *testing.T, dir string) (nucPath, memPath string) {
	t.Helper()
	nucleus := labels.New(10, 12)
	testutil.FillRect(nucleus, labels.BBox{RowMax: 3, ColMax: 3}, 1)
	nucleus.Set(8, 8, 2)
	membrane := labels.New(10, 12)
	testutil.FillRect(membrane, labels.BBox{RowMax: 4, ColMax: 4}, 10)

	nucPath = filepath.Join(dir, "nucleus.tif")
	memPath = filepath.Join(dir, "membrane.png")
	require.NoError(t, maskio.WriteFile(nucPath, nucleus))
	require.NoError(t, maskio.WriteFile(memPath, membrane))
	return nucPath, memPath
}

func TestRun_EndToEnd(t *testing.T) {
	defer monitoring.Mute()()
	dir := t.TempDir()
	nucPath, memPath := writeMasks(t, dir)
	outPath := filepath.Join(dir, "final.tif")
	dbPath := filepath.Join(dir, "runs.db")
	reportDir := filepath.Join(dir, "report")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-nucleus", nucPath,
		"-membrane", memPath,
		"-out", outPath,
		"-db", dbPath,
		"-report-dir", reportDir,
		"-workers", "2",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	final, err := maskio.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), final.At(3, 3), "matched membrane rewritten to nucleus id")
	assert.Equal(t, uint32(2), final.At(7, 8), "orphan grown by the matched-pair distance")

	store, err := runstore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Matched)
	assert.Equal(t, 1, runs[0].NoOverlap)
	assert.Equal(t, outPath, runs[0].OutputPath)
	assert.Equal(t, 2, runs[0].Config.GetWorkers())

	for _, name := range []string{"expansion.png", "dashboard.html"} {
		_, err := os.Stat(filepath.Join(reportDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	defer monitoring.Mute()()
	dir := t.TempDir()
	nucPath, memPath := writeMasks(t, dir)
	cfgPath := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"growth_distance": 0}`), 0o644))
	outPath := filepath.Join(dir, "final.png")

	err := run(context.Background(), []string{
		"-nucleus", nucPath, "-membrane", memPath, "-out", outPath, "-config", cfgPath,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, err)

	final, err := maskio.ReadFile(outPath)
	require.NoError(t, err)
	assert.Zero(t, final.At(7, 8), "fixed zero distance disables growth")
	assert.Equal(t, uint32(2), final.At(8, 8))
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, &bytes.Buffer{}))
	assert.True(t, strings.HasPrefix(stdout.String(), "cellrecon "))
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"-nucleus", "a.png"},
		{"-nucleus", "a.png", "-membrane", "b.png", "-out", "c.png", "-workers", "-1"},
	}
	for _, args := range tests {
		err := run(context.Background(), args, &bytes.Buffer{}, &bytes.Buffer{})
		assert.ErrorIs(t, err, errUsage, "%v", args)
	}
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), []string{
		"-nucleus", filepath.Join(dir, "none.png"),
		"-membrane", filepath.Join(dir, "none.png"),
		"-out", filepath.Join(dir, "out.png"),
	}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read nucleus mask")
}
