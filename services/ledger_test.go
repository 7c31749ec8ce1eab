package services

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratojira/models"
)

// Bootstrapは存在しない台帳にだけヘッダー行を書き込む
func TestErrorLedgerBootstrap(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		env.ledger.issueFile,
		env.ledger.commentFile,
		env.ledger.attachmentFile,
		env.ledger.unmappedFile,
	} {
		assert.FileExists(t, path)
	}

	// 再初期化しても既存の記録は消えない
	require.NoError(t, env.ledger.AppendIssueError(models.IssueError{SourceKey: "TEST-1", Error: "HTTP 500"}))
	require.NoError(t, env.ledger.Bootstrap())

	rows := readLedgerRows(t, env.ledger.issueFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEST-1", rows[0][0])
}

// タイムスタンプが未設定の場合は追記時に自動で埋められる
func TestAppendIssueErrorFillsTimestamp(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.ledger.AppendIssueError(models.IssueError{
		SourceKey: "TEST-1",
		Error:     "HTTP 500",
		Details:   "internal server error",
	}))

	rows := readLedgerRows(t, env.ledger.issueFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEST-1", rows[0][0])
	assert.Equal(t, "HTTP 500", rows[0][1])
	assert.NotEmpty(t, rows[0][2])
	assert.Equal(t, "internal server error", rows[0][3])
}

// 同一キーの複数記録は最後のものを採用する
func TestLoadIssueErrorsLastWins(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.ledger.AppendIssueError(models.IssueError{SourceKey: "TEST-1", Error: "HTTP 500"}))
	require.NoError(t, env.ledger.AppendIssueError(models.IssueError{SourceKey: "TEST-1", Error: "HTTP 400"}))
	require.NoError(t, env.ledger.AppendIssueError(models.IssueError{SourceKey: "TEST-2", Error: "HTTP 500"}))

	failed, err := env.ledger.LoadIssueErrors()
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "HTTP 400", failed["TEST-1"].Error)
}

// コメントエラーは移行元キーでグループ化され、同一IDの重複は1件にまとまる
func TestLoadCommentErrorsGroupsAndDeduplicates(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.ledger.AppendCommentError(models.CommentError{
		SourceKey: "TEST-1", TargetKey: "NEW-1", CommentID: "1", Error: "HTTP 500",
	}))
	require.NoError(t, env.ledger.AppendCommentError(models.CommentError{
		SourceKey: "TEST-1", TargetKey: "NEW-1", CommentID: "1", Error: "HTTP 500",
	}))
	require.NoError(t, env.ledger.AppendCommentError(models.CommentError{
		SourceKey: "TEST-1", TargetKey: "NEW-1", CommentID: "2", Error: "HTTP 500",
	}))
	require.NoError(t, env.ledger.AppendCommentError(models.CommentError{
		SourceKey: "TEST-2", TargetKey: "NEW-2", CommentID: "1", Error: "HTTP 500",
	}))

	grouped, err := env.ledger.LoadCommentErrors()
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Len(t, grouped["TEST-1"], 2)
	assert.Len(t, grouped["TEST-2"], 1)
}

func TestLoadAttachmentErrorsGrouped(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.ledger.AppendAttachmentError(models.AttachmentError{
		SourceKey: "TEST-1", TargetKey: "NEW-1", AttachmentID: "10", Filename: "a.txt", Error: "HTTP 500",
	}))
	require.NoError(t, env.ledger.AppendAttachmentError(models.AttachmentError{
		SourceKey: "TEST-1", TargetKey: "NEW-1", AttachmentID: "11", Filename: "b.txt", Error: "HTTP 500",
	}))

	grouped, err := env.ledger.LoadAttachmentErrors()
	require.NoError(t, err)
	require.Len(t, grouped["TEST-1"], 2)
	assert.Equal(t, "a.txt", grouped["TEST-1"][0].Filename)
	assert.Equal(t, "10", grouped["TEST-1"][0].AttachmentID)
}

// ヘッダーだけの台帳や存在しない台帳は空として読み込まれる
func TestLoadErrorsEmptyLedger(t *testing.T) {
	env := newTestEnv(t)

	failed, err := env.ledger.LoadIssueErrors()
	require.NoError(t, err)
	assert.Empty(t, failed)

	require.NoError(t, os.Remove(env.ledger.commentFile))
	grouped, err := env.ledger.LoadCommentErrors()
	require.NoError(t, err)
	assert.Empty(t, grouped)
}
