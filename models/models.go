package models

// Snapshot はフェッチャーが出力するエクスポートドキュメント全体を表します
type Snapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	Issues   []SourceIssue    `json:"issues"`
}

// SnapshotMetadata はエクスポートのメタ情報を表します
type SnapshotMetadata struct {
	SourceProject string        `json:"source_project"`
	ExportDate    string        `json:"export_date"`
	Stats         SnapshotStats `json:"stats"`
}

// SnapshotStats はエクスポートの集計統計を表します
type SnapshotStats struct {
	TotalIssues     int    `json:"total_issues"`
	WithComments    int    `json:"with_comments"`
	WithAttachments int    `json:"with_attachments"`
	FetchTime       string `json:"fetch_time"`
}

// SourceIssue は移行元のイシューを表します（スナップショットから読み込み、変更されません）
type SourceIssue struct {
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields はイシューのフィールドを表します
// カスタムフィールドがIDで動的に参照されるため、汎用マップとして保持します
type IssueFields map[string]interface{}

// StringField は文字列フィールドを取得します（存在しない場合は空文字列）
func (f IssueFields) StringField(name string) string {
	if v, ok := f[name].(string); ok {
		return v
	}
	return ""
}

// NamedField は {"name": "..."} 形式フィールドのname値を取得します
func (f IssueFields) NamedField(name string) string {
	obj, ok := f[name].(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := obj["name"].(string)
	return v
}

// NameList は [{"name": "..."}] 形式フィールドのname値の一覧を取得します
func (f IssueFields) NameList(name string) []string {
	list, ok := f[name].([]interface{})
	if !ok {
		return nil
	}
	var names []string
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := obj["name"].(string); ok {
			names = append(names, v)
		}
	}
	return names
}

// Labels はラベルの一覧を取得します
func (f IssueFields) Labels() []string {
	list, ok := f["labels"].([]interface{})
	if !ok {
		return nil
	}
	var labels []string
	for _, item := range list {
		if v, ok := item.(string); ok {
			labels = append(labels, v)
		}
	}
	return labels
}

// UserEmail はユーザーフィールドのメールアドレスを取得します
func (f IssueFields) UserEmail(field string) (string, bool) {
	obj, ok := f[field].(map[string]interface{})
	if !ok {
		return "", false
	}
	v, _ := obj["emailAddress"].(string)
	return v, true
}

// CommentCount は埋め込まれたコメントの件数を返します
func (f IssueFields) CommentCount() int {
	obj, ok := f["comment"].(map[string]interface{})
	if !ok {
		return 0
	}
	list, ok := obj["comments"].([]interface{})
	if !ok {
		return 0
	}
	return len(list)
}

// AttachmentCount は埋め込まれた添付ファイルメタデータの件数を返します
func (f IssueFields) AttachmentCount() int {
	list, ok := f["attachment"].([]interface{})
	if !ok {
		return 0
	}
	return len(list)
}

// User はJIRAユーザーを表します
type User struct {
	EmailAddress string `json:"emailAddress"`
}

// Comment はイシューのコメントを表します
type Comment struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Author  User   `json:"author"`
	Created string `json:"created,omitempty"`
}

// Attachment はイシューの添付ファイルメタデータを表します
// Contentは移行元が提供するダウンロードURLです
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// IssueMapping は移行元キーと移行先キーのマッピングを表します
type IssueMapping map[string]string

// IssueError はイシュー移行の失敗記録を表します
type IssueError struct {
	SourceKey string
	Error     string
	Timestamp string
	Details   string
}

// CommentError はコメント移行の失敗記録を表します
type CommentError struct {
	SourceKey string
	TargetKey string
	CommentID string
	Error     string
	Timestamp string
}

// AttachmentError は添付ファイル移行の失敗記録を表します
type AttachmentError struct {
	SourceKey    string
	TargetKey    string
	AttachmentID string
	Filename     string
	Error        string
	Timestamp    string
}
