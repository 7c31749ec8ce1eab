package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/models"
	"jiratojira/utils"
)

// testEnv はテスト用の移行環境一式です
// 移行元・移行先それぞれに偽のJIRAサーバーを立てます
type testEnv struct {
	cfg      *config.Config
	mapping  *config.MappingConfig
	keymap   *KeyMappingStore
	ledger   *ErrorLedger
	migrator *MigrationService

	sourceMux *http.ServeMux
	targetMux *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sourceMux := http.NewServeMux()
	targetMux := http.NewServeMux()
	sourceSrv := httptest.NewServer(sourceMux)
	targetSrv := httptest.NewServer(targetMux)
	t.Cleanup(sourceSrv.Close)
	t.Cleanup(targetSrv.Close)

	dataDir := t.TempDir()
	cfg := &config.Config{
		SourceURL:        sourceSrv.URL,
		SourceUsername:   "source-user",
		SourcePassword:   "source-pass",
		TargetURL:        targetSrv.URL,
		TargetUsername:   "target-user",
		TargetPassword:   "target-pass",
		SourceProjectKey: "TEST",
		TargetProjectKey: "NEW",
		DefaultUser:      "admin@example.com",
		DataDir:          dataDir,
		ExportDir:        filepath.Join(dataDir, "exported"),
		LogDir:           filepath.Join(dataDir, "logs"),
		RequestTimeout:   5 * time.Second,
		ContentTimeout:   5 * time.Second,
	}

	mapping := &config.MappingConfig{
		IssueTypes:   map[string]string{"Story": "Task"},
		Priorities:   map[string]string{"Highest": "High"},
		Components:   map[string]string{"Backend": "Platform"},
		Versions:     map[string]string{"v1.0": "1.0"},
		CustomFields: map[string]string{"customfield_10001": "customfield_20001"},
		Users:        map[string]string{"user1@example.com": "user1@target.example.com"},
	}

	keymap := NewKeyMappingStore(cfg)
	require.NoError(t, keymap.Bootstrap())
	ledger := NewErrorLedger(cfg)
	require.NoError(t, ledger.Bootstrap())

	source := api.NewSourceClient(cfg)
	target := api.NewTargetClient(cfg)
	migrator := NewMigrationService(cfg, mapping, source, target, keymap, ledger)

	return &testEnv{
		cfg:       cfg,
		mapping:   mapping,
		keymap:    keymap,
		ledger:    ledger,
		migrator:  migrator,
		sourceMux: sourceMux,
		targetMux: targetMux,
	}
}

// writeSnapshot はエクスポート済みスナップショットをテスト用に書き出します
func (e *testEnv) writeSnapshot(t *testing.T, issues []models.SourceIssue) {
	t.Helper()
	require.NoError(t, utils.EnsureDir(e.cfg.ExportDir))

	data, err := json.Marshal(models.Snapshot{Issues: issues})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.cfg.ExportFile(), data, 0644))
}

// sourceIssue はテスト用の移行元イシューを作成します
func sourceIssue(key string, fields models.IssueFields) models.SourceIssue {
	return models.SourceIssue{Key: key, Fields: fields}
}

// serveComments は移行元サーバーにコメント一覧エンドポイントを登録します
func (e *testEnv) serveComments(comments map[string][]models.Comment) {
	e.sourceMux.HandleFunc("GET /rest/api/2/issue/{key}/comment", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"comments": comments[r.PathValue("key")],
		})
	})
}

// serveAttachments は移行元サーバーに添付ファイルメタデータエンドポイントを登録します
func (e *testEnv) serveAttachments(attachments map[string][]models.Attachment) {
	e.sourceMux.HandleFunc("GET /rest/api/2/issue/{key}", func(w http.ResponseWriter, r *http.Request) {
		list := attachments[r.PathValue("key")]
		if list == nil {
			list = []models.Attachment{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fields": map[string]interface{}{"attachment": list},
		})
	})
}

// readLedgerRows はエラー台帳のファイルをヘッダーを除いて読み込みます
func readLedgerRows(t *testing.T, path string) [][]string {
	t.Helper()
	rows, err := readRows(path)
	require.NoError(t, err)
	return rows
}
