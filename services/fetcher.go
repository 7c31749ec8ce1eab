package services

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/models"
	"jiratojira/utils"
)

// fetchBatchSize はページングの1バッチあたりの件数です
const fetchBatchSize = 100

// fetchExpand はエクスポート時に展開するフィールドです
const fetchExpand = "renderedFields,names,operations,editmeta,changelog,versionedRepresentations,attachment,comments"

// FetchService は移行元プロジェクトの全イシューをスナップショットとして
// エクスポートします
type FetchService struct {
	cfg    *config.Config
	source *api.JiraClient
}

// NewFetchService は新しいフェッチサービスを作成します
func NewFetchService(cfg *config.Config, source *api.JiraClient) *FetchService {
	return &FetchService{cfg: cfg, source: source}
}

// FetchAllIssues は移行元プロジェクトの全イシューをページングで取得し、
// スナップショットファイルに保存してそのパスを返します
func (f *FetchService) FetchAllIssues() (string, error) {
	utils.LogInfo("プロジェクト %s のイシューエクスポートを開始します", f.cfg.SourceProjectKey)
	startTime := time.Now()

	if err := utils.EnsureDir(f.cfg.ExportDir); err != nil {
		return "", fmt.Errorf("エクスポートディレクトリ作成エラー: %w", err)
	}

	jql := fmt.Sprintf("project=%s", f.cfg.SourceProjectKey)
	total, err := f.source.SearchCount(jql)
	if err != nil {
		return "", fmt.Errorf("イシュー総数取得エラー: %w", err)
	}
	if total == 0 {
		return "", fmt.Errorf("移行元プロジェクトにイシューが見つかりません")
	}

	utils.LogInfo("エクスポート対象: %d 件", total)

	stats := models.SnapshotStats{TotalIssues: total}

	var allIssues []models.SourceIssue
	startAt := 0
	for startAt < total {
		batch, err := f.source.SearchIssues(jql, startAt, fetchBatchSize, fetchExpand)
		if err != nil {
			utils.LogError("バッチ取得エラー (startAt=%d): %v", startAt, err)
			break
		}
		if len(batch) == 0 {
			break
		}

		allIssues = append(allIssues, batch...)
		startAt += len(batch)
		utils.LogInfo("進捗: %d/%d", startAt, total)

		for _, issue := range batch {
			if issue.Fields.CommentCount() > 0 {
				stats.WithComments++
			}
			if issue.Fields.AttachmentCount() > 0 {
				stats.WithAttachments++
			}
		}
	}

	stats.FetchTime = time.Since(startTime).String()

	snapshot := models.Snapshot{
		Metadata: models.SnapshotMetadata{
			SourceProject: f.cfg.SourceProjectKey,
			ExportDate:    time.Now().Format(time.RFC3339),
			Stats:         stats,
		},
		Issues: allIssues,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("スナップショットエンコードエラー: %w", err)
	}

	exportFile := f.cfg.ExportFile()
	if err := os.WriteFile(exportFile, data, 0644); err != nil {
		return "", fmt.Errorf("スナップショット書き込みエラー: %w", err)
	}

	utils.LogInfo("%d 件のイシューを %s にエクスポートしました", len(allIssues), exportFile)
	utils.LogInfo("統計: 合計=%d, コメント付き=%d, 添付ファイル付き=%d, 所要時間=%s",
		stats.TotalIssues, stats.WithComments, stats.WithAttachments, stats.FetchTime)

	return exportFile, nil
}
