package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jiratojira/config"
	"jiratojira/models"
	"jiratojira/utils"
)

// エラー台帳の列レイアウトは再試行・検証フェーズとの互換性契約です
var (
	issueErrorHeader      = []string{"source_key", "error", "timestamp", "details"}
	commentErrorHeader    = []string{"source_key", "target_key", "comment_id", "error", "timestamp"}
	attachmentErrorHeader = []string{"source_key", "target_key", "attachment_id", "filename", "error", "timestamp"}
	unmappedUserHeader    = []string{"issue_key", "original_email", "default_user", "field"}
)

// ErrorLedger は種別ごとの追記専用エラー台帳です
// 監査ログであると同時に再試行エンジンの作業キューの情報源になります
// 追記は削除されません（成功した再試行も元の記録を消しません）
// ファイルベースの追記のため、複数プロセスからの同時書き込みには対応していません
type ErrorLedger struct {
	issueFile      string
	commentFile    string
	attachmentFile string
	unmappedFile   string
}

// NewErrorLedger は新しいエラー台帳を作成します
func NewErrorLedger(cfg *config.Config) *ErrorLedger {
	dir := cfg.ErrorsDir()
	return &ErrorLedger{
		issueFile:      filepath.Join(dir, "issue_migration_errors.csv"),
		commentFile:    filepath.Join(dir, "comment_migration_errors.csv"),
		attachmentFile: filepath.Join(dir, "attachment_migration_errors.csv"),
		unmappedFile:   filepath.Join(dir, "unmapped_users.csv"),
	}
}

// Bootstrap はディレクトリを作成し、存在しない台帳にヘッダー行を書き込みます
func (l *ErrorLedger) Bootstrap() error {
	if err := utils.EnsureDir(filepath.Dir(l.issueFile)); err != nil {
		return fmt.Errorf("エラーディレクトリ作成エラー: %w", err)
	}

	headers := map[string][]string{
		l.issueFile:      issueErrorHeader,
		l.commentFile:    commentErrorHeader,
		l.attachmentFile: attachmentErrorHeader,
		l.unmappedFile:   unmappedUserHeader,
	}

	for path, header := range headers {
		if utils.FileExists(path) {
			continue
		}
		if err := appendRow(path, header); err != nil {
			return err
		}
	}

	return nil
}

// AppendIssueError はイシュー移行の失敗を台帳に追記します
func (l *ErrorLedger) AppendIssueError(e models.IssueError) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}
	return appendRow(l.issueFile, []string{e.SourceKey, e.Error, e.Timestamp, e.Details})
}

// AppendCommentError はコメント移行の失敗を台帳に追記します
func (l *ErrorLedger) AppendCommentError(e models.CommentError) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}
	return appendRow(l.commentFile, []string{e.SourceKey, e.TargetKey, e.CommentID, e.Error, e.Timestamp})
}

// AppendAttachmentError は添付ファイル移行の失敗を台帳に追記します
func (l *ErrorLedger) AppendAttachmentError(e models.AttachmentError) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}
	return appendRow(l.attachmentFile, []string{e.SourceKey, e.TargetKey, e.AttachmentID, e.Filename, e.Error, e.Timestamp})
}

// AppendUnmappedUser はマッピングできなかったユーザーの監査記録を追記します
// これは移行失敗ではなく、移行を中断しません
func (l *ErrorLedger) AppendUnmappedUser(issueKey, originalEmail, defaultUser, field string) error {
	return appendRow(l.unmappedFile, []string{issueKey, originalEmail, defaultUser, field})
}

// LoadIssueErrors はイシューエラーを移行元キーで重複排除して読み込みます
func (l *ErrorLedger) LoadIssueErrors() (map[string]models.IssueError, error) {
	rows, err := readRows(l.issueFile)
	if err != nil {
		return nil, err
	}

	errors := make(map[string]models.IssueError)
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		// 同一キーの複数記録は最後のものを採用
		errors[row[0]] = models.IssueError{
			SourceKey: row[0],
			Error:     row[1],
			Timestamp: row[2],
			Details:   row[3],
		}
	}

	return errors, nil
}

// LoadCommentErrors はコメントエラーを移行元キーでグループ化して読み込みます
// 同一パス内でコメントIDが重複する記録は1件にまとめます
func (l *ErrorLedger) LoadCommentErrors() (map[string][]models.CommentError, error) {
	rows, err := readRows(l.commentFile)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]models.CommentError)
	seen := make(map[string]bool)
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		key := row[0] + "\x00" + row[2]
		if seen[key] {
			continue
		}
		seen[key] = true
		grouped[row[0]] = append(grouped[row[0]], models.CommentError{
			SourceKey: row[0],
			TargetKey: row[1],
			CommentID: row[2],
			Error:     row[3],
			Timestamp: row[4],
		})
	}

	return grouped, nil
}

// LoadAttachmentErrors は添付ファイルエラーを移行元キーでグループ化して読み込みます
func (l *ErrorLedger) LoadAttachmentErrors() (map[string][]models.AttachmentError, error) {
	rows, err := readRows(l.attachmentFile)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]models.AttachmentError)
	seen := make(map[string]bool)
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		key := row[0] + "\x00" + row[2]
		if seen[key] {
			continue
		}
		seen[key] = true
		grouped[row[0]] = append(grouped[row[0]], models.AttachmentError{
			SourceKey:    row[0],
			TargetKey:    row[1],
			AttachmentID: row[2],
			Filename:     row[3],
			Error:        row[4],
			Timestamp:    row[5],
		})
	}

	return grouped, nil
}

// appendRow はCSVファイルに1行追記します
func appendRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("台帳オープンエラー: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("台帳書き込みエラー: %w", err)
	}
	writer.Flush()

	return writer.Error()
}

// readRows はヘッダー行を除いた全レコードを読み込みます
// ファイルが存在しない場合は空のリストを返します
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("台帳オープンエラー: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("台帳読み込みエラー: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	return records[1:], nil
}
