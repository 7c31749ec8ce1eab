package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/models"
	"jiratojira/utils"
)

// progressInterval は進捗ログを出力する間隔（件数）です
const progressInterval = 25

// MigrationService は移行元JIRAから移行先JIRAへのイシュー移行を処理します
// 1件ずつ順次処理し、項目単位の失敗は台帳に記録してバッチを継続します
type MigrationService struct {
	cfg     *config.Config
	mapping *config.MappingConfig
	source  *api.JiraClient
	target  *api.JiraClient
	keymap  *KeyMappingStore
	ledger  *ErrorLedger
}

// NewMigrationService は新しい移行サービスを作成します
func NewMigrationService(cfg *config.Config, mapping *config.MappingConfig,
	source, target *api.JiraClient, keymap *KeyMappingStore, ledger *ErrorLedger) *MigrationService {
	return &MigrationService{
		cfg:     cfg,
		mapping: mapping,
		source:  source,
		target:  target,
		keymap:  keymap,
		ledger:  ledger,
	}
}

// LoadSnapshot はエクスポート済みスナップショットを読み込みます
func (m *MigrationService) LoadSnapshot() (*models.Snapshot, error) {
	data, err := os.ReadFile(m.cfg.ExportFile())
	if err != nil {
		return nil, fmt.Errorf("スナップショット読み込みエラー: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("スナップショット解析エラー: %w", err)
	}

	return &snapshot, nil
}

// MigrateIssues はスナップショットの全イシューを移行します
// limitが正の場合は先頭N件のみ、testModeの場合は移行先への書き込みを行いません
func (m *MigrationService) MigrateIssues(limit int, testMode bool) (int, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "イシュー移行")

	utils.LogInfo("イシュー移行を開始します (テストモード: %v, 上限: %d)", testMode, limit)

	snapshot, err := m.LoadSnapshot()
	if err != nil {
		return 0, err
	}

	issues := snapshot.Issues
	if limit > 0 && limit < len(issues) {
		issues = issues[:limit]
	}

	existing, err := m.keymap.Load()
	if err != nil {
		return 0, err
	}

	successCount := 0
	for i, issue := range issues {
		if (i+1)%progressInterval == 0 {
			utils.LogInfo("進捗: %d/%d", i+1, len(issues))
		}

		// 移行済みのイシューを再作成しない（冪等性の事前チェック）
		if targetKey, ok := existing[issue.Key]; ok {
			utils.LogInfo("イシュー %s は移行済みです (%s) - スキップ", issue.Key, targetKey)
			continue
		}

		if testMode {
			utils.LogInfo("テストモード: %s を移行します", issue.Key)
			successCount++
			continue
		}

		newKey, ok := m.migrateSingleIssue(issue)
		if !ok {
			continue
		}

		successCount++
		existing[issue.Key] = newKey
		if err := m.keymap.Put(issue.Key, newKey); err != nil {
			utils.LogError("マッピング保存失敗 %s -> %s: %v", issue.Key, newKey, err)
		}

		// カスケード: コメントと添付ファイル
		// ここでの失敗はイシュー自体の移行成功を取り消しません
		m.MigrateComments(issue.Key, newKey)
		m.MigrateAttachments(issue.Key, newKey)
	}

	utils.LogInfo("イシュー移行完了: %d/%d 件成功", successCount, len(issues))
	return successCount, nil
}

// migrateSingleIssue は1件のイシューを変換して移行先に作成します
// 失敗は台帳に記録し、falseを返します
func (m *MigrationService) migrateSingleIssue(issue models.SourceIssue) (string, bool) {
	payload := m.transformIssue(issue)

	newKey, err := m.target.CreateIssue(payload)
	if err != nil {
		record := models.IssueError{SourceKey: issue.Key}

		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			record.Error = statusErr.Error()
			record.Details = statusErr.Body
		} else {
			record.Error = api.Truncate(err.Error(), 500)
			record.Details = "イシュー作成中に失敗"
		}

		if lerr := m.ledger.AppendIssueError(record); lerr != nil {
			utils.LogError("エラー台帳書き込み失敗: %v", lerr)
		}
		utils.LogError("イシュー %s の移行に失敗: %v", issue.Key, err)
		return "", false
	}

	utils.LogInfo("イシュー %s を %s として移行しました", issue.Key, newKey)
	return newKey, true
}

// transformIssue はマッピングテーブルを使って移行先用のフィールドを構築します
// すべてのマッピングは全域的で、未知の値はそのまま通すかデフォルトを使います
func (m *MigrationService) transformIssue(issue models.SourceIssue) map[string]interface{} {
	fields := issue.Fields

	summary := fields.StringField("summary")
	if summary == "" {
		summary = "No summary"
	}

	payload := map[string]interface{}{
		"project":     map[string]string{"key": m.cfg.TargetProjectKey},
		"summary":     summary,
		"description": fields.StringField("description"),
		"issuetype":   m.mapNamedValue(fields.NamedField("issuetype"), m.mapping.IssueTypes, "Task"),
		"priority":    m.mapNamedValue(fields.NamedField("priority"), m.mapping.Priorities, "Medium"),
		"labels":      unionLabels(fields.Labels(), m.mapping.Defaults.Labels),
		"components":  m.mapNameList(fields.NameList("components"), m.mapping.Components, m.mapping.Defaults.Components),
		"fixVersions": m.mapNameList(fields.NameList("fixVersions"), m.mapping.Versions, m.mapping.Defaults.FixVersions),
	}

	m.mapCustomFields(fields, payload)
	m.mapUsers(fields, payload, issue.Key)

	return payload
}

// mapNamedValue はイシュータイプや優先度を1:1でマッピングします
// テーブルにない名前はそのまま通し、値がない場合は固定デフォルトを使います
func (m *MigrationService) mapNamedValue(sourceName string, table map[string]string, fallback string) map[string]string {
	if sourceName == "" {
		return map[string]string{"name": fallback}
	}
	if target, ok := table[sourceName]; ok {
		return map[string]string{"name": target}
	}
	return map[string]string{"name": sourceName}
}

// mapNameList はコンポーネントやバージョンを要素ごとにマッピングします
// マッピング結果が空の場合は設定されたデフォルトのリストを返します
func (m *MigrationService) mapNameList(sourceNames []string, table map[string]string, defaults []string) []map[string]string {
	var mapped []map[string]string
	for _, name := range sourceNames {
		target := name
		if t, ok := table[name]; ok {
			target = t
		}
		mapped = append(mapped, map[string]string{"name": target})
	}

	if len(mapped) == 0 {
		for _, name := range defaults {
			mapped = append(mapped, map[string]string{"name": name})
		}
	}

	if mapped == nil {
		mapped = []map[string]string{}
	}
	return mapped
}

// mapCustomFields はカスタムフィールドをID変換してコピーします
// 移行元に存在しないIDはスキップします
func (m *MigrationService) mapCustomFields(fields models.IssueFields, payload map[string]interface{}) {
	for sourceID, targetID := range m.mapping.CustomFields {
		if value, ok := fields[sourceID]; ok {
			payload[targetID] = value
		}
	}
}

// mapUsers は報告者と担当者をアイデンティティマッパーで変換します
// デフォルトユーザーにフォールバックした場合は監査記録を残します（移行は中断しません）
func (m *MigrationService) mapUsers(fields models.IssueFields, payload map[string]interface{}, sourceKey string) {
	for _, field := range []string{"reporter", "assignee"} {
		email, ok := fields.UserEmail(field)
		if !ok {
			continue
		}

		mapped := config.MapUser(email, m.mapping, m.cfg.DefaultUser)
		if mapped == m.cfg.DefaultUser && email != "" {
			if err := m.ledger.AppendUnmappedUser(sourceKey, email, m.cfg.DefaultUser, field); err != nil {
				utils.LogError("未マッピングユーザー記録失敗: %v", err)
			}
		}

		payload[field] = map[string]string{"emailAddress": mapped}
	}
}

// unionLabels は移行元のラベルとデフォルトラベルの和集合を返します
func unionLabels(sourceLabels, defaultLabels []string) []string {
	labels := make([]string, 0, len(sourceLabels)+len(defaultLabels))
	seen := make(map[string]bool)

	for _, l := range sourceLabels {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	for _, l := range defaultLabels {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}

	return labels
}

// MigrateComments は移行済みの1イシューのコメントを移行します
// コメント一覧の取得に失敗した場合はイシュー単位で記録してカスケードを中止します
// 個々のコメントの失敗は独立して記録され、残りのコメントの処理を止めません
func (m *MigrationService) MigrateComments(sourceKey, targetKey string) (int, int) {
	comments, err := m.source.GetComments(sourceKey)
	if err != nil {
		msg, _ := describeError(err)
		if lerr := m.ledger.AppendCommentError(models.CommentError{
			SourceKey: sourceKey,
			TargetKey: targetKey,
			Error:     "コメント取得失敗: " + msg,
		}); lerr != nil {
			utils.LogError("エラー台帳書き込み失敗: %v", lerr)
		}
		utils.LogError("イシュー %s のコメント取得に失敗: %v", sourceKey, err)
		return 0, 0
	}

	successCount := 0
	for _, comment := range comments {
		if err := m.migrateSingleComment(comment, sourceKey, targetKey); err != nil {
			msg, _ := describeError(err)
			if lerr := m.ledger.AppendCommentError(models.CommentError{
				SourceKey: sourceKey,
				TargetKey: targetKey,
				CommentID: comment.ID,
				Error:     msg,
			}); lerr != nil {
				utils.LogError("エラー台帳書き込み失敗: %v", lerr)
			}
			utils.LogWarn("コメント %s の移行に失敗 (%s -> %s): %v", comment.ID, sourceKey, targetKey, err)
			continue
		}
		successCount++
	}

	if len(comments) > 0 {
		utils.LogInfo("イシュー %s のコメント移行: %d/%d 件成功", sourceKey, successCount, len(comments))
	}
	return successCount, len(comments)
}

// migrateSingleComment は1件のコメントを変換して移行先に作成します
func (m *MigrationService) migrateSingleComment(comment models.Comment, sourceKey, targetKey string) error {
	mappedAuthor := config.MapUser(comment.Author.EmailAddress, m.mapping, m.cfg.DefaultUser)

	payload := map[string]interface{}{
		"body":   comment.Body,
		"author": map[string]string{"emailAddress": mappedAuthor},
	}
	if comment.Created != "" {
		payload["created"] = comment.Created
	}

	return m.target.AddComment(targetKey, payload)
}

// MigrateAttachments は移行済みの1イシューの添付ファイルを移行します
// ダウンロードとアップロードのどちらの失敗も独立して記録されます
func (m *MigrationService) MigrateAttachments(sourceKey, targetKey string) (int, int) {
	attachments, err := m.source.GetAttachments(sourceKey)
	if err != nil {
		msg, _ := describeError(err)
		if lerr := m.ledger.AppendAttachmentError(models.AttachmentError{
			SourceKey: sourceKey,
			TargetKey: targetKey,
			Error:     "添付ファイル取得失敗: " + msg,
		}); lerr != nil {
			utils.LogError("エラー台帳書き込み失敗: %v", lerr)
		}
		utils.LogError("イシュー %s の添付ファイル取得に失敗: %v", sourceKey, err)
		return 0, 0
	}

	successCount := 0
	for _, attachment := range attachments {
		if err := m.migrateSingleAttachment(attachment, targetKey); err != nil {
			msg, _ := describeError(err)
			if lerr := m.ledger.AppendAttachmentError(models.AttachmentError{
				SourceKey:    sourceKey,
				TargetKey:    targetKey,
				AttachmentID: attachment.ID,
				Filename:     attachment.Filename,
				Error:        msg,
			}); lerr != nil {
				utils.LogError("エラー台帳書き込み失敗: %v", lerr)
			}
			utils.LogWarn("添付ファイル %s (%s) の移行に失敗: %v", attachment.Filename, attachment.ID, err)
			continue
		}
		successCount++
	}

	if len(attachments) > 0 {
		utils.LogInfo("イシュー %s の添付ファイル移行: %d/%d 件成功", sourceKey, successCount, len(attachments))
	}
	return successCount, len(attachments)
}

// migrateSingleAttachment は1件の添付ファイルをダウンロードしてアップロードします
func (m *MigrationService) migrateSingleAttachment(attachment models.Attachment, targetKey string) error {
	data, err := m.source.DownloadAttachment(attachment.Content)
	if err != nil {
		return fmt.Errorf("ダウンロード失敗: %w", err)
	}

	if err := m.target.UploadAttachment(targetKey, attachment.Filename, data); err != nil {
		return fmt.Errorf("アップロード失敗: %w", err)
	}

	return nil
}

// MigrateCommentsBatch はキーマッピングストア上の全イシューのコメントを移行します
// イシュー移行とは独立して再実行するためのエントリポイントです
func (m *MigrationService) MigrateCommentsBatch(limit int, testMode bool) (int, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "コメント一括移行")

	utils.LogInfo("コメント一括移行を開始します (テストモード: %v, 上限: %d)", testMode, limit)

	pairs, err := m.mappedPairs(limit)
	if err != nil {
		return 0, err
	}

	successCount := 0
	totalComments := 0
	for _, pair := range pairs {
		if testMode {
			utils.LogInfo("テストモード: %s -> %s のコメントを移行します", pair[0], pair[1])
			continue
		}

		migrated, total := m.MigrateComments(pair[0], pair[1])
		successCount += migrated
		totalComments += total
	}

	utils.LogInfo("コメント移行完了: %d/%d 件成功", successCount, totalComments)
	return successCount, nil
}

// MigrateAttachmentsBatch はキーマッピングストア上の全イシューの添付ファイルを移行します
func (m *MigrationService) MigrateAttachmentsBatch(limit int, testMode bool) (int, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "添付ファイル一括移行")

	utils.LogInfo("添付ファイル一括移行を開始します (テストモード: %v, 上限: %d)", testMode, limit)

	pairs, err := m.mappedPairs(limit)
	if err != nil {
		return 0, err
	}

	successCount := 0
	totalAttachments := 0
	for _, pair := range pairs {
		if testMode {
			utils.LogInfo("テストモード: %s -> %s の添付ファイルを移行します", pair[0], pair[1])
			continue
		}

		migrated, total := m.MigrateAttachments(pair[0], pair[1])
		successCount += migrated
		totalAttachments += total
	}

	utils.LogInfo("添付ファイル移行完了: %d/%d 件成功", successCount, totalAttachments)
	return successCount, nil
}

// mappedPairs はキーマッピングを移行元キーでソートしたペアの一覧として返します
// マップの反復順序は不定のため、実行を決定的にするためにソートします
func (m *MigrationService) mappedPairs(limit int) ([][2]string, error) {
	mapping, err := m.keymap.Load()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, mapping[k]})
	}

	return pairs, nil
}

// describeError はエラーを台帳用の説明と詳細に分類します
// プロトコル障害は切り詰めたレスポンスボディを詳細として添えます
func describeError(err error) (string, string) {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return api.Truncate(err.Error(), 500), statusErr.Body
	}
	return api.Truncate(err.Error(), 500), ""
}
