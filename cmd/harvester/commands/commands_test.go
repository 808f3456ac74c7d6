package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "harvester.json5")
	require.NoError(t, os.WriteFile(configFile, []byte(`{
		driver: { mode: "mock", mock: { total: 80, initial: 40, step: 40, latency: "0s" } },
		harvest: { settle_interval: "0s", flush_threshold: 10 },
	}`), 0o644))

	dest := filepath.Join(dir, "reviews.ndjson")
	index := filepath.Join(dir, "reviews.bleve")
	common := []string{"--config", configFile, "--log-level", "error"}

	out, err := execute(t, append([]string{"run", "--target", "app", "--count", "30", "--destination", dest, "--index", index}, common...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "DONE")
	assert.Contains(t, out, "app")

	out, err = execute(t, append([]string{"repair", dest}, common...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "REMOVED")

	out, err = execute(t, append([]string{"search", "--index", index, "Text:simulated"}, common...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[app] Simulated review")

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "harvester")

	_, err = execute(t, append([]string{"run", "--destination", filepath.Join(dir, "reviews.csv")}, common...)...)
	assert.ErrorContains(t, err, "1 of 1 targets failed")
}
