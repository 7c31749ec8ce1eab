package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/models"
	"jiratojira/utils"
)

// defaultSampleSize は内容検証でサンプリングするイシューの件数です
const defaultSampleSize = 5

var validationErrorHeader = []string{"validation_type", "source_key", "target_key", "error", "timestamp"}

// 内容検証で比較するフィールド（文字列化して比較）
var comparedFields = []string{"summary", "description", "issuetype", "priority", "status"}

// ValidationService は移行結果を検証します
// 読み取り専用で、移行の状態を一切変更しません
// 各チェックは部分的なデータに耐性があり、取得に失敗した比較だけが打ち切られます
type ValidationService struct {
	cfg    *config.Config
	source *api.JiraClient
	target *api.JiraClient
	keymap *KeyMappingStore

	resultsFile string
	reportFile  string
	errorFile   string
}

// NewValidationService は新しい検証サービスを作成します
func NewValidationService(cfg *config.Config, source, target *api.JiraClient, keymap *KeyMappingStore) *ValidationService {
	return &ValidationService{
		cfg:         cfg,
		source:      source,
		target:      target,
		keymap:      keymap,
		resultsFile: filepath.Join(cfg.LogDir, "validation_results.json"),
		reportFile:  filepath.Join(cfg.LogDir, "validation_report.txt"),
		errorFile:   filepath.Join(cfg.LogDir, "validation_errors.csv"),
	}
}

// Bootstrap はログディレクトリと検証エラーログを初期化します
func (v *ValidationService) Bootstrap() error {
	if err := utils.EnsureDir(v.cfg.LogDir); err != nil {
		return fmt.Errorf("ログディレクトリ作成エラー: %w", err)
	}

	if !utils.FileExists(v.errorFile) {
		return appendRow(v.errorFile, validationErrorHeader)
	}
	return nil
}

// FullValidation は移行のすべての側面を検証し、結果をファイルに保存します
func (v *ValidationService) FullValidation() (*models.ValidationResults, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "移行検証")

	utils.LogInfo("移行検証を開始します")

	results := &models.ValidationResults{
		Timestamp: time.Now().Format(time.RFC3339),
	}

	v.ValidateCounts(results)
	v.ValidateIssueMappings(results)
	v.ValidateSampleContent(results, defaultSampleSize)
	v.ValidateComments(results, defaultSampleSize)
	v.ValidateAttachments(results, defaultSampleSize)

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("検証結果エンコードエラー: %w", err)
	}
	if err := os.WriteFile(v.resultsFile, data, 0644); err != nil {
		return nil, fmt.Errorf("検証結果書き込みエラー: %w", err)
	}

	if err := v.writeReport(results); err != nil {
		return nil, err
	}

	utils.LogInfo("検証が完了しました。結果: %s", v.resultsFile)
	return results, nil
}

// ValidateCounts はイシュー・コメント付き・添付ファイル付きの件数を比較します
func (v *ValidationService) ValidateCounts(results *models.ValidationResults) {
	utils.LogInfo("件数の検証を開始します")

	sourceIssues, sourceComments, sourceAttachments := v.projectCounts(v.source, v.cfg.SourceProjectKey)
	targetIssues, targetComments, targetAttachments := v.projectCounts(v.target, v.cfg.TargetProjectKey)

	results.Summary.IssueCount = v.compareCount("issues", sourceIssues, targetIssues)
	results.Summary.CommentCount = v.compareCount("comments", sourceComments, targetComments)
	results.Summary.AttachmentCount = v.compareCount("attachments", sourceAttachments, targetAttachments)
}

// compareCount は1つの件数指標を比較し、不一致を記録します
func (v *ValidationService) compareCount(metric string, source, target int) models.CountComparison {
	comparison := models.CountComparison{
		Source: source,
		Target: target,
		Match:  source == target,
	}

	if !comparison.Match {
		v.logValidationError("count_validation", "", "",
			fmt.Sprintf("%s の件数不一致: 移行元=%d 移行先=%d", metric, source, target))
	}

	return comparison
}

// projectCounts はプロジェクトのイシュー・コメント付き・添付ファイル付きの件数を取得します
// 取得に失敗した指標は0として扱います
func (v *ValidationService) projectCounts(client *api.JiraClient, projectKey string) (int, int, int) {
	queries := []string{
		fmt.Sprintf("project=%s", projectKey),
		fmt.Sprintf("project=%s AND comment IS NOT EMPTY", projectKey),
		fmt.Sprintf("project=%s AND attachments IS NOT EMPTY", projectKey),
	}

	counts := make([]int, len(queries))
	for i, jql := range queries {
		count, err := client.SearchCount(jql)
		if err != nil {
			utils.LogError("件数取得エラー (%s): %v", jql, err)
			continue
		}
		counts[i] = count
	}

	return counts[0], counts[1], counts[2]
}

// ValidateIssueMappings は全スナップショットイシューのマッピングの有無と
// 移行先イシューの存在、およびフィールドの一致を検証します
func (v *ValidationService) ValidateIssueMappings(results *models.ValidationResults) {
	utils.LogInfo("イシューマッピングの検証を開始します")

	data, err := os.ReadFile(v.cfg.ExportFile())
	if err != nil {
		utils.LogError("スナップショット読み込みエラー: %v", err)
		return
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		utils.LogError("スナップショット解析エラー: %v", err)
		return
	}

	mapping, err := v.keymap.Load()
	if err != nil {
		utils.LogError("マッピング読み込みエラー: %v", err)
		return
	}

	results.Summary.MappedIssues.Total = len(mapping)

	for _, sourceIssue := range snapshot.Issues {
		sourceKey := sourceIssue.Key

		targetKey, ok := mapping[sourceKey]
		if !ok {
			v.logValidationError("issue_mapping", sourceKey, "", "移行元イシューがマッピングされていません")
			results.Details.InvalidMappings = append(results.Details.InvalidMappings, models.Discrepancy{
				SourceKey: sourceKey,
				Errors:    []string{"マッピングなし"},
			})
			continue
		}

		if !v.target.IssueExists(targetKey) {
			v.logValidationError("issue_mapping", sourceKey, targetKey, "移行先イシューが見つかりません")
			results.Details.InvalidMappings = append(results.Details.InvalidMappings, models.Discrepancy{
				SourceKey: sourceKey,
				TargetKey: targetKey,
				Errors:    []string{"移行先イシューが見つかりません"},
			})
			continue
		}

		targetIssue, err := v.target.GetIssue(targetKey)
		if err != nil {
			utils.LogError("イシュー %s の取得エラー: %v", targetKey, err)
			continue
		}

		fieldErrors := compareIssueFields(sourceIssue.Fields, targetIssue.Fields)
		if len(fieldErrors) > 0 {
			for _, e := range fieldErrors {
				v.logValidationError("field_mapping", sourceKey, targetKey, e)
			}
			results.Details.InvalidMappings = append(results.Details.InvalidMappings, models.Discrepancy{
				SourceKey: sourceKey,
				TargetKey: targetKey,
				Errors:    fieldErrors,
			})
			continue
		}

		results.Summary.MappedIssues.Valid++
	}
}

// ValidateSampleContent はマッピング済みイシューのサンプルについて
// 主要フィールドの内容を値単位で比較します
func (v *ValidationService) ValidateSampleContent(results *models.ValidationResults, sampleSize int) {
	utils.LogInfo("サンプル内容の検証を開始します (%d 件)", sampleSize)

	for _, pair := range v.samplePairs(sampleSize) {
		sourceKey, targetKey := pair[0], pair[1]

		sourceIssue, err := v.source.GetIssue(sourceKey)
		if err != nil {
			utils.LogError("イシュー %s の取得エラー: %v", sourceKey, err)
			continue
		}
		targetIssue, err := v.target.GetIssue(targetKey)
		if err != nil {
			utils.LogError("イシュー %s の取得エラー: %v", targetKey, err)
			continue
		}

		results.Summary.ContentValidation.Total++

		differences := compareIssueFields(sourceIssue.Fields, targetIssue.Fields)
		if len(differences) == 0 {
			results.Summary.ContentValidation.Valid++
			continue
		}

		results.Details.ContentErrors = append(results.Details.ContentErrors, models.Discrepancy{
			SourceKey: sourceKey,
			TargetKey: targetKey,
			Errors:    differences,
		})
		for _, e := range differences {
			v.logValidationError("content_validation", sourceKey, targetKey, e)
		}
	}
}

// ValidateComments はサンプルのイシューについてコメントの件数と本文を比較します
func (v *ValidationService) ValidateComments(results *models.ValidationResults, sampleSize int) {
	utils.LogInfo("コメントの検証を開始します (%d 件)", sampleSize)

	for _, pair := range v.samplePairs(sampleSize) {
		sourceKey, targetKey := pair[0], pair[1]

		sourceComments, err := v.source.GetComments(sourceKey)
		if err != nil {
			utils.LogError("イシュー %s のコメント取得エラー: %v", sourceKey, err)
			continue
		}
		targetComments, err := v.target.GetComments(targetKey)
		if err != nil {
			utils.LogError("イシュー %s のコメント取得エラー: %v", targetKey, err)
			continue
		}

		results.Summary.CommentValidation.Total++

		differences := compareComments(sourceComments, targetComments)
		if len(differences) == 0 {
			results.Summary.CommentValidation.Valid++
			continue
		}

		results.Details.CommentErrors = append(results.Details.CommentErrors, models.Discrepancy{
			SourceKey: sourceKey,
			TargetKey: targetKey,
			Errors:    differences,
		})
		for _, e := range differences {
			v.logValidationError("comment_validation", sourceKey, targetKey, e)
		}
	}
}

// ValidateAttachments はサンプルのイシューについて添付ファイルの件数と
// ファイル名の集合を比較します
func (v *ValidationService) ValidateAttachments(results *models.ValidationResults, sampleSize int) {
	utils.LogInfo("添付ファイルの検証を開始します (%d 件)", sampleSize)

	for _, pair := range v.samplePairs(sampleSize) {
		sourceKey, targetKey := pair[0], pair[1]

		sourceAttachments, err := v.source.GetAttachments(sourceKey)
		if err != nil {
			utils.LogError("イシュー %s の添付ファイル取得エラー: %v", sourceKey, err)
			continue
		}
		targetAttachments, err := v.target.GetAttachments(targetKey)
		if err != nil {
			utils.LogError("イシュー %s の添付ファイル取得エラー: %v", targetKey, err)
			continue
		}

		results.Summary.AttachmentValidation.Total++

		differences := compareAttachments(sourceAttachments, targetAttachments)
		if len(differences) == 0 {
			results.Summary.AttachmentValidation.Valid++
			continue
		}

		results.Details.AttachmentErrors = append(results.Details.AttachmentErrors, models.Discrepancy{
			SourceKey: sourceKey,
			TargetKey: targetKey,
			Errors:    differences,
		})
		for _, e := range differences {
			v.logValidationError("attachment_validation", sourceKey, targetKey, e)
		}
	}
}

// samplePairs はマッピング済みイシューの先頭N件（キーのソート順）を返します
func (v *ValidationService) samplePairs(sampleSize int) [][2]string {
	mapping, err := v.keymap.Load()
	if err != nil {
		utils.LogError("マッピング読み込みエラー: %v", err)
		return nil
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if sampleSize > 0 && sampleSize < len(keys) {
		keys = keys[:sampleSize]
	}

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, mapping[k]})
	}

	return pairs
}

// compareIssueFields は主要フィールドを文字列化して比較します
func compareIssueFields(source, target models.IssueFields) []string {
	var differences []string

	for _, field := range comparedFields {
		sourceValue := stringifyField(source[field])
		targetValue := stringifyField(target[field])

		if sourceValue != targetValue {
			differences = append(differences,
				fmt.Sprintf("フィールド %s の不一致: 移行元='%s' 移行先='%s'", field, sourceValue, targetValue))
		}
	}

	return differences
}

// stringifyField はフィールド値を比較用の文字列にします
func stringifyField(value interface{}) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}

// compareComments はコメントの件数と、短い方の長さまでの位置合わせした本文を比較します
func compareComments(source, target []models.Comment) []string {
	var differences []string

	if len(source) != len(target) {
		differences = append(differences,
			fmt.Sprintf("コメント件数の不一致: 移行元=%d 移行先=%d", len(source), len(target)))
	}

	minLen := len(source)
	if len(target) < minLen {
		minLen = len(target)
	}
	for i := 0; i < minLen; i++ {
		if source[i].Body != target[i].Body {
			differences = append(differences, fmt.Sprintf("位置 %d のコメント本文の不一致", i))
		}
	}

	return differences
}

// compareAttachments は添付ファイルの件数とファイル名の集合を比較します
func compareAttachments(source, target []models.Attachment) []string {
	var differences []string

	if len(source) != len(target) {
		differences = append(differences,
			fmt.Sprintf("添付ファイル件数の不一致: 移行元=%d 移行先=%d", len(source), len(target)))
	}

	sourceFiles := make(map[string]bool)
	for _, a := range source {
		sourceFiles[a.Filename] = true
	}
	targetFiles := make(map[string]bool)
	for _, a := range target {
		targetFiles[a.Filename] = true
	}

	var missing, extra []string
	for name := range sourceFiles {
		if !targetFiles[name] {
			missing = append(missing, name)
		}
	}
	for name := range targetFiles {
		if !sourceFiles[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	if len(missing) > 0 {
		differences = append(differences, "不足している添付ファイル: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		differences = append(differences, "余分な添付ファイル: "+strings.Join(extra, ", "))
	}

	return differences
}

// logValidationError は検証エラーをCSVログに追記します
func (v *ValidationService) logValidationError(validationType, sourceKey, targetKey, message string) {
	row := []string{validationType, sourceKey, targetKey, message, time.Now().Format(time.RFC3339)}
	if err := appendRow(v.errorFile, row); err != nil {
		utils.LogError("検証エラーログ書き込み失敗: %v", err)
	}
	utils.LogWarn("検証エラー (%s): %s->%s - %s", validationType, sourceKey, targetKey, message)
}

// writeReport は人間が読めるテキストレポートを書き出します
func (v *ValidationService) writeReport(results *models.ValidationResults) error {
	var b strings.Builder

	b.WriteString("=== 移行検証レポート ===\n")
	b.WriteString(fmt.Sprintf("日時: %s\n\n", results.Timestamp))

	b.WriteString("=== サマリー ===\n")
	writeCountLine(&b, "イシュー件数", results.Summary.IssueCount)
	writeCountLine(&b, "コメント件数", results.Summary.CommentCount)
	writeCountLine(&b, "添付ファイル件数", results.Summary.AttachmentCount)
	writeCategoryLine(&b, "マッピング検証", results.Summary.MappedIssues)
	writeCategoryLine(&b, "内容検証", results.Summary.ContentValidation)
	writeCategoryLine(&b, "コメント検証", results.Summary.CommentValidation)
	writeCategoryLine(&b, "添付ファイル検証", results.Summary.AttachmentValidation)

	b.WriteString("\n=== 詳細 ===\n")
	writeDiscrepancies(&b, "無効なマッピング", results.Details.InvalidMappings)
	writeDiscrepancies(&b, "内容の不一致", results.Details.ContentErrors)
	writeDiscrepancies(&b, "コメントの不一致", results.Details.CommentErrors)
	writeDiscrepancies(&b, "添付ファイルの不一致", results.Details.AttachmentErrors)

	if err := os.WriteFile(v.reportFile, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("レポート書き込みエラー: %w", err)
	}

	utils.LogInfo("詳細レポート: %s", v.reportFile)
	return nil
}

func writeCountLine(b *strings.Builder, name string, c models.CountComparison) {
	status := "OK"
	if !c.Match {
		status = "不一致"
	}
	b.WriteString(fmt.Sprintf("%s: 移行元=%d 移行先=%d (%s)\n", name, c.Source, c.Target, status))
}

func writeCategoryLine(b *strings.Builder, name string, c models.CategorySummary) {
	b.WriteString(fmt.Sprintf("%s: %d/%d 件有効\n", name, c.Valid, c.Total))
}

func writeDiscrepancies(b *strings.Builder, name string, list []models.Discrepancy) {
	if len(list) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n%s:\n", name))
	for _, d := range list {
		b.WriteString(fmt.Sprintf("- %s -> %s\n", d.SourceKey, d.TargetKey))
		for _, e := range d.Errors {
			b.WriteString(fmt.Sprintf("    %s\n", e))
		}
	}
}
