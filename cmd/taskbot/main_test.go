package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// fileHistoryConfig writes a config that keeps history as flat files in a
// temp data dir.
func fileHistoryConfig(t *testing.T) (cfgPath, dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	cfgPath = filepath.Join(dataDir, "config.yaml")
	body := "data_dir: " + dataDir + "\nhistory:\n  backend: file\n  path: history\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, dataDir
}

func TestParseKind(t *testing.T) {
	k, err := parseKind("mk_draft")
	require.NoError(t, err)
	assert.Equal(t, estimate.KindDraft, k)

	_, err = parseKind("poem")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research, mk_draft")
}

func TestEstimateWithoutHistoryUsesDefaults(t *testing.T) {
	cfgPath, _ := fileHistoryConfig(t)
	out, err := execute(t, "estimate", "research", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "research: 5-15 min")
	assert.Contains(t, out, "first run, rough estimate")
}

func TestEstimateAndHistoryReadRecordedRuns(t *testing.T) {
	cfgPath, dataDir := fileHistoryConfig(t)
	log := estimate.NewFileLog(afero.NewOsFs(), filepath.Join(dataDir, "history"))
	ctx := context.Background()
	for _, rec := range []estimate.Record{
		{Timestamp: time.Now(), Topic: "朝ごはん", ElapsedSeconds: 600, CostUSD: 0.1, CostJPY: 15},
		{Timestamp: time.Now(), Topic: "夜食", ElapsedSeconds: 1200, CostUSD: 0.2, CostJPY: 30},
	} {
		require.NoError(t, log.Append(ctx, estimate.KindDraft, rec))
	}

	out, err := execute(t, "estimate", "mk_draft", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "based on 2 past runs")

	out, err = execute(t, "history", "mk_draft", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "朝ごはん")
	assert.Contains(t, out, "夜食")

	out, err = execute(t, "history", "mk_draft", "-n", "1", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "朝ごはん")
	assert.Contains(t, out, "夜食")
}

func TestHistoryEmpty(t *testing.T) {
	cfgPath, _ := fileHistoryConfig(t)
	out, err := execute(t, "history", "research", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no research runs recorded")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, "config", "init", "--config", path)
	require.Error(t, err)

	_, err = execute(t, "config", "init", "--force", "--config", path)
	require.NoError(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "あい…", truncate("あいうえお", 3))
}
