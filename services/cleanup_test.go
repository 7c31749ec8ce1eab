package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratojira/utils"
)

func TestClearErrorLogs(t *testing.T) {
	env := newTestEnv(t)
	cleanup := NewCleanupService(env.cfg)

	// エラー台帳はBootstrapで作成済み
	assert.FileExists(t, env.ledger.issueFile)

	require.NoError(t, utils.EnsureDir(env.cfg.LogDir))
	logFile := filepath.Join(env.cfg.LogDir, "migration_20260829_120000.log")
	require.NoError(t, os.WriteFile(logFile, []byte("log"), 0644))

	require.NoError(t, cleanup.ClearErrorLogs())

	// エラー台帳だけが削除され、通常のログは残る
	assert.NoFileExists(t, env.ledger.issueFile)
	assert.NoFileExists(t, env.ledger.commentFile)
	assert.FileExists(t, logFile)
}

func TestClearAllLogs(t *testing.T) {
	env := newTestEnv(t)
	cleanup := NewCleanupService(env.cfg)

	require.NoError(t, utils.EnsureDir(env.cfg.LogDir))
	logFile := filepath.Join(env.cfg.LogDir, "migration_20260829_120000.log")
	require.NoError(t, os.WriteFile(logFile, []byte("log"), 0644))

	require.NoError(t, cleanup.ClearAllLogs())

	assert.NoFileExists(t, env.ledger.issueFile)
	assert.NoFileExists(t, logFile)
}

// 存在しないディレクトリのクリーンアップはエラーにならない
func TestClearLogsMissingDir(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.LogDir = filepath.Join(t.TempDir(), "nonexistent")
	cleanup := NewCleanupService(env.cfg)

	require.NoError(t, cleanup.ClearAllLogs())
}
