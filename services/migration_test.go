package services

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratojira/models"
)

// スナップショットに1件のイシューがあり、移行先が201を返す場合の一連の流れ
func TestMigrateIssuesEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	env.writeSnapshot(t, []models.SourceIssue{
		sourceIssue("TEST-1", models.IssueFields{
			"summary":     "Test Issue",
			"description": "Test Description",
			"reporter":    map[string]interface{}{"emailAddress": "user1@example.com"},
			"attachment":  []interface{}{},
		}),
	})

	var createdFields map[string]interface{}
	env.targetMux.HandleFunc("POST /rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Fields map[string]interface{} `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		createdFields = payload.Fields
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"key": "NEW-1"})
	})

	var postedComments []map[string]interface{}
	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/comment", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEW-1", r.PathValue("key"))
		var comment map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&comment))
		postedComments = append(postedComments, comment)
		w.WriteHeader(http.StatusCreated)
	})

	uploadCount := 0
	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/attachments", func(w http.ResponseWriter, r *http.Request) {
		uploadCount++
		w.WriteHeader(http.StatusOK)
	})

	env.serveComments(map[string][]models.Comment{
		"TEST-1": {{ID: "1", Body: "Test comment", Author: models.User{EmailAddress: "user1@example.com"}}},
	})
	env.serveAttachments(map[string][]models.Attachment{})

	count, err := env.migrator.MigrateIssues(1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// キーマッピングストアにエントリが追加される
	mapping, err := env.keymap.Load()
	require.NoError(t, err)
	assert.Equal(t, models.IssueMapping{"TEST-1": "NEW-1"}, mapping)

	// 報告者はアイデンティティマッパーで変換される
	require.NotNil(t, createdFields)
	assert.Equal(t, map[string]interface{}{"emailAddress": "user1@target.example.com"}, createdFields["reporter"])
	assert.Equal(t, "Test Issue", createdFields["summary"])

	// コメントカスケード: 1件のコメントが投稿され、著者が変換されている
	require.Len(t, postedComments, 1)
	assert.Equal(t, "Test comment", postedComments[0]["body"])
	assert.Equal(t, map[string]interface{}{"emailAddress": "user1@target.example.com"}, postedComments[0]["author"])

	// 添付ファイルカスケードは空リストなので何も処理しない
	assert.Equal(t, 0, uploadCount)
}

// マッピング済みのイシューを再実行しても移行先に重複を作らない
func TestMigrateIssuesIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.writeSnapshot(t, []models.SourceIssue{
		sourceIssue("TEST-1", models.IssueFields{"summary": "Test Issue"}),
	})
	require.NoError(t, env.keymap.Put("TEST-1", "NEW-1"))

	createCount := 0
	env.targetMux.HandleFunc("POST /rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		createCount++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"key": "NEW-2"})
	})

	count, err := env.migrator.MigrateIssues(0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, createCount)

	// 既存のマッピングがそのまま残る
	mapping, err := env.keymap.Load()
	require.NoError(t, err)
	assert.Equal(t, models.IssueMapping{"TEST-1": "NEW-1"}, mapping)
}

// テストモードでは移行先への書き込みもカスケードも行わない
func TestMigrateIssuesDryRun(t *testing.T) {
	env := newTestEnv(t)

	env.writeSnapshot(t, []models.SourceIssue{
		sourceIssue("TEST-1", models.IssueFields{"summary": "One"}),
		sourceIssue("TEST-2", models.IssueFields{"summary": "Two"}),
	})

	// ハンドラー未登録のため、書き込みが起これば404が台帳に記録される
	count, err := env.migrator.MigrateIssues(0, true)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mapping, err := env.keymap.Load()
	require.NoError(t, err)
	assert.Empty(t, mapping)

	rows := readLedgerRows(t, env.ledger.issueFile)
	assert.Empty(t, rows)
}

func TestMigrateIssuesLimit(t *testing.T) {
	env := newTestEnv(t)

	env.writeSnapshot(t, []models.SourceIssue{
		sourceIssue("TEST-1", models.IssueFields{"summary": "One"}),
		sourceIssue("TEST-2", models.IssueFields{"summary": "Two"}),
		sourceIssue("TEST-3", models.IssueFields{"summary": "Three"}),
	})

	createCount := 0
	env.targetMux.HandleFunc("POST /rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		createCount++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"key": "NEW-1"})
	})
	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/comment", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	env.serveComments(map[string][]models.Comment{})
	env.serveAttachments(map[string][]models.Attachment{})

	count, err := env.migrator.MigrateIssues(2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, createCount)
}

// 作成失敗ごとにちょうど1件のIssueErrorが台帳に追記され、バッチは継続する
func TestMigrateIssueFailureLedgered(t *testing.T) {
	env := newTestEnv(t)

	env.writeSnapshot(t, []models.SourceIssue{
		sourceIssue("TEST-1", models.IssueFields{"summary": "Fails"}),
		sourceIssue("TEST-2", models.IssueFields{"summary": "Succeeds"}),
	})

	createCount := 0
	env.targetMux.HandleFunc("POST /rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		createCount++
		if createCount == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("bad request body"))
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"key": "NEW-2"})
	})
	env.serveComments(map[string][]models.Comment{})
	env.serveAttachments(map[string][]models.Attachment{})

	count, err := env.migrator.MigrateIssues(0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows := readLedgerRows(t, env.ledger.issueFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEST-1", rows[0][0])
	assert.Equal(t, "HTTP 400", rows[0][1])
	assert.NotEmpty(t, rows[0][2])
	assert.Equal(t, "bad request body", rows[0][3])

	mapping, err := env.keymap.Load()
	require.NoError(t, err)
	assert.Equal(t, models.IssueMapping{"TEST-2": "NEW-2"}, mapping)
}

// マッピングテーブルにない値でも変換は必ず有効なペイロードを生成する
func TestTransformFallbacks(t *testing.T) {
	env := newTestEnv(t)
	env.mapping.Defaults.Components = []string{"General"}
	env.mapping.Defaults.Labels = []string{"migrated", "a"}

	payload := env.migrator.transformIssue(sourceIssue("TEST-1", models.IssueFields{
		"summary":   "Test",
		"issuetype": map[string]interface{}{"name": "Unknown Type"},
		"components": []interface{}{
			map[string]interface{}{"name": "Backend"},
			map[string]interface{}{"name": "Other"},
		},
		"labels":            []interface{}{"a"},
		"customfield_10001": float64(5),
	}))

	// 未知のイシュータイプはそのまま通す
	assert.Equal(t, map[string]string{"name": "Unknown Type"}, payload["issuetype"])
	// 優先度がない場合は固定デフォルト
	assert.Equal(t, map[string]string{"name": "Medium"}, payload["priority"])
	// コンポーネントは要素ごとにマッピング（未知はそのまま）
	assert.Equal(t, []map[string]string{{"name": "Platform"}, {"name": "Other"}}, payload["components"])
	// バージョンが空の場合はデフォルトリスト（ここでは未設定なので空）
	assert.Equal(t, []map[string]string{}, payload["fixVersions"])
	// ラベルは和集合
	assert.Equal(t, []string{"a", "migrated"}, payload["labels"])
	// カスタムフィールドはID変換してコピー
	assert.Equal(t, float64(5), payload["customfield_20001"])
}

func TestTransformDefaultsWhenAbsent(t *testing.T) {
	env := newTestEnv(t)

	payload := env.migrator.transformIssue(sourceIssue("TEST-1", models.IssueFields{}))

	assert.Equal(t, "No summary", payload["summary"])
	assert.Equal(t, map[string]string{"name": "Task"}, payload["issuetype"])
	assert.Equal(t, map[string]string{"name": "Medium"}, payload["priority"])
	// ユーザーフィールドがない場合はペイロードにも含めない
	assert.NotContains(t, payload, "reporter")
	assert.NotContains(t, payload, "assignee")
}

// マッピングにないユーザーはデフォルトに置き換え、元のメールアドレスを監査記録に残す
func TestTransformUnmappedUserAudited(t *testing.T) {
	env := newTestEnv(t)

	payload := env.migrator.transformIssue(sourceIssue("TEST-9", models.IssueFields{
		"summary":  "Test",
		"reporter": map[string]interface{}{"emailAddress": "x@example.com"},
	}))

	assert.Equal(t, map[string]string{"emailAddress": "admin@example.com"}, payload["reporter"])

	rows := readLedgerRows(t, env.ledger.unmappedFile)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"TEST-9", "x@example.com", "admin@example.com", "reporter"}, rows[0])
}

// 個々のコメントの失敗は独立して記録され、残りのコメントは処理される
func TestCommentFailuresIndependent(t *testing.T) {
	env := newTestEnv(t)

	env.serveComments(map[string][]models.Comment{
		"TEST-1": {
			{ID: "1", Body: "ok", Author: models.User{EmailAddress: "user1@example.com"}},
			{ID: "2", Body: "bad", Author: models.User{EmailAddress: "user1@example.com"}},
			{ID: "3", Body: "ok too", Author: models.User{EmailAddress: "user1@example.com"}},
		},
	})

	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/comment", func(w http.ResponseWriter, r *http.Request) {
		var comment map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&comment))
		if comment["body"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	migrated, total := env.migrator.MigrateComments("TEST-1", "NEW-1")
	assert.Equal(t, 2, migrated)
	assert.Equal(t, 3, total)

	rows := readLedgerRows(t, env.ledger.commentFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEST-1", rows[0][0])
	assert.Equal(t, "NEW-1", rows[0][1])
	assert.Equal(t, "2", rows[0][2])
	assert.Equal(t, "HTTP 400", rows[0][3])
	assert.NotEmpty(t, rows[0][4])
}

// コメント一覧の取得失敗はイシュー単位で記録し、そのイシューのカスケードだけを中止する
func TestCommentFetchFailureAbortsCascade(t *testing.T) {
	env := newTestEnv(t)

	env.sourceMux.HandleFunc("GET /rest/api/2/issue/{key}/comment", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	migrated, total := env.migrator.MigrateComments("TEST-1", "NEW-1")
	assert.Equal(t, 0, migrated)
	assert.Equal(t, 0, total)

	rows := readLedgerRows(t, env.ledger.commentFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEST-1", rows[0][0])
	assert.Empty(t, rows[0][2]) // イシューレベルの失敗なのでコメントIDなし
}

// ダウンロードとアップロードのどちらの失敗も独立して記録される
func TestAttachmentFailuresIndependent(t *testing.T) {
	env := newTestEnv(t)

	env.serveAttachments(map[string][]models.Attachment{
		"TEST-1": {
			{ID: "10", Filename: "good.txt", Content: env.cfg.SourceURL + "/files/good.txt"},
			{ID: "11", Filename: "missing.txt", Content: env.cfg.SourceURL + "/files/missing.txt"},
		},
	})
	env.sourceMux.HandleFunc("GET /files/good.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file data"))
	})
	env.sourceMux.HandleFunc("GET /files/missing.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	uploaded := 0
	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/attachments", func(w http.ResponseWriter, r *http.Request) {
		uploaded++
		w.WriteHeader(http.StatusOK)
	})

	migrated, total := env.migrator.MigrateAttachments("TEST-1", "NEW-1")
	assert.Equal(t, 1, migrated)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, uploaded)

	rows := readLedgerRows(t, env.ledger.attachmentFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEST-1", rows[0][0])
	assert.Equal(t, "NEW-1", rows[0][1])
	assert.Equal(t, "11", rows[0][2])
	assert.Equal(t, "missing.txt", rows[0][3])
	assert.Contains(t, rows[0][4], "ダウンロード失敗")
}

func TestAttachmentUploadFailureLedgered(t *testing.T) {
	env := newTestEnv(t)

	env.serveAttachments(map[string][]models.Attachment{
		"TEST-1": {{ID: "10", Filename: "doc.pdf", Content: env.cfg.SourceURL + "/files/doc.pdf"}},
	})
	env.sourceMux.HandleFunc("GET /files/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdf data"))
	})
	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/attachments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	migrated, total := env.migrator.MigrateAttachments("TEST-1", "NEW-1")
	assert.Equal(t, 0, migrated)
	assert.Equal(t, 1, total)

	rows := readLedgerRows(t, env.ledger.attachmentFile)
	require.Len(t, rows, 1)
	assert.Equal(t, "10", rows[0][2])
	assert.Equal(t, "doc.pdf", rows[0][3])
	assert.Contains(t, rows[0][4], "アップロード失敗")
}

// 一括フェーズはキーマッピングストア全体を対象に再実行できる
func TestMigrateCommentsBatch(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.keymap.Put("TEST-1", "NEW-1"))
	require.NoError(t, env.keymap.Put("TEST-2", "NEW-2"))

	env.serveComments(map[string][]models.Comment{
		"TEST-1": {{ID: "1", Body: "c1", Author: models.User{EmailAddress: "user1@example.com"}}},
		"TEST-2": {{ID: "2", Body: "c2", Author: models.User{EmailAddress: "user1@example.com"}}},
	})

	var postedKeys []string
	env.targetMux.HandleFunc("POST /rest/api/2/issue/{key}/comment", func(w http.ResponseWriter, r *http.Request) {
		postedKeys = append(postedKeys, r.PathValue("key"))
		w.WriteHeader(http.StatusCreated)
	})

	count, err := env.migrator.MigrateCommentsBatch(0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"NEW-1", "NEW-2"}, postedKeys)
}

func TestMigrateCommentsBatchDryRun(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.keymap.Put("TEST-1", "NEW-1"))

	count, err := env.migrator.MigrateCommentsBatch(0, true)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
