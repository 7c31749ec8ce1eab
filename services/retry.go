package services

import (
	"sort"
	"time"

	"jiratojira/utils"
)

// RetryService は台帳に記録された失敗項目のみを再処理します
// 再試行の予算は種別ごとのバッチ全体での試行回数です（項目ごとではありません）
// 予算を使い切った場合、残りの失敗項目は次回の実行に持ち越されます
type RetryService struct {
	m *MigrationService
}

// NewRetryService は新しい再試行サービスを作成します
// 移行エンジンと同じ変換ロジックを再利用します
func NewRetryService(m *MigrationService) *RetryService {
	return &RetryService{m: m}
}

// RetryFailedIssues は失敗したイシュー移行を再試行します
func (r *RetryService) RetryFailedIssues(maxRetries int) (int, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "イシュー再試行")

	utils.LogInfo("失敗したイシュー移行を再試行します (予算: %d)", maxRetries)

	snapshot, err := r.m.LoadSnapshot()
	if err != nil {
		return 0, err
	}

	index := make(map[string]int, len(snapshot.Issues))
	for i, issue := range snapshot.Issues {
		index[issue.Key] = i
	}

	failed, err := r.m.ledger.LoadIssueErrors()
	if err != nil {
		return 0, err
	}

	if len(failed) == 0 {
		utils.LogInfo("再試行するイシューはありません")
		return 0, nil
	}

	mapping, err := r.m.keymap.Load()
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	retryCount := 0
	successCount := 0
	for _, sourceKey := range keys {
		if retryCount >= maxRetries {
			utils.LogWarn("イシュー再試行の上限 (%d) に達しました", maxRetries)
			break
		}

		// 以前の再試行で成功済みの記録はスキップ（台帳は履歴ログであり消えないため）
		if targetKey, ok := mapping[sourceKey]; ok {
			utils.LogInfo("イシュー %s は移行済みです (%s) - スキップ", sourceKey, targetKey)
			continue
		}

		idx, ok := index[sourceKey]
		if !ok {
			utils.LogWarn("スナップショットに元のイシューが見つかりません: %s", sourceKey)
			continue
		}

		newKey, ok := r.m.migrateSingleIssue(snapshot.Issues[idx])
		if ok {
			successCount++
			if err := r.m.keymap.Put(sourceKey, newKey); err != nil {
				utils.LogError("マッピング保存失敗 %s -> %s: %v", sourceKey, newKey, err)
			}
		}

		retryCount++
	}

	utils.LogInfo("イシュー再試行: %d 件試行、%d 件成功", retryCount, successCount)
	return successCount, nil
}

// RetryFailedComments は失敗したコメント移行を再試行します
// 移行元から現在のコメント一覧を取得し直し、失敗として記録されたIDだけを再処理します
func (r *RetryService) RetryFailedComments(maxRetries int) (int, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "コメント再試行")

	utils.LogInfo("失敗したコメント移行を再試行します (予算: %d)", maxRetries)

	failed, err := r.m.ledger.LoadCommentErrors()
	if err != nil {
		return 0, err
	}

	if len(failed) == 0 {
		utils.LogInfo("再試行するコメントはありません")
		return 0, nil
	}

	mapping, err := r.m.keymap.Load()
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	retryCount := 0
	successCount := 0
	for _, sourceKey := range keys {
		if retryCount >= maxRetries {
			utils.LogWarn("コメント再試行の上限 (%d) に達しました", maxRetries)
			break
		}

		// マッピングがない場合はイシュー自体が未移行（記録して継続）
		targetKey, ok := mapping[sourceKey]
		if !ok {
			utils.LogWarn("イシュー %s の移行先が見つかりません", sourceKey)
			continue
		}

		comments, err := r.m.source.GetComments(sourceKey)
		if err != nil {
			utils.LogWarn("イシュー %s のコメント取得に失敗: %v", sourceKey, err)
			continue
		}

		failedIDs := make(map[string]bool)
		for _, e := range failed[sourceKey] {
			failedIDs[e.CommentID] = true
		}

		for _, comment := range comments {
			if !failedIDs[comment.ID] {
				continue
			}
			if retryCount >= maxRetries {
				break
			}

			if err := r.m.migrateSingleComment(comment, sourceKey, targetKey); err != nil {
				utils.LogWarn("コメント %s の再試行に失敗: %v", comment.ID, err)
			} else {
				successCount++
			}

			retryCount++
		}
	}

	utils.LogInfo("コメント再試行: %d 件試行、%d 件成功", retryCount, successCount)
	return successCount, nil
}

// RetryFailedAttachments は失敗した添付ファイル移行を再試行します
func (r *RetryService) RetryFailedAttachments(maxRetries int) (int, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "添付ファイル再試行")

	utils.LogInfo("失敗した添付ファイル移行を再試行します (予算: %d)", maxRetries)

	failed, err := r.m.ledger.LoadAttachmentErrors()
	if err != nil {
		return 0, err
	}

	if len(failed) == 0 {
		utils.LogInfo("再試行する添付ファイルはありません")
		return 0, nil
	}

	mapping, err := r.m.keymap.Load()
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	retryCount := 0
	successCount := 0
	for _, sourceKey := range keys {
		if retryCount >= maxRetries {
			utils.LogWarn("添付ファイル再試行の上限 (%d) に達しました", maxRetries)
			break
		}

		targetKey, ok := mapping[sourceKey]
		if !ok {
			utils.LogWarn("イシュー %s の移行先が見つかりません", sourceKey)
			continue
		}

		attachments, err := r.m.source.GetAttachments(sourceKey)
		if err != nil {
			utils.LogWarn("イシュー %s の添付ファイル取得に失敗: %v", sourceKey, err)
			continue
		}

		failedIDs := make(map[string]bool)
		for _, e := range failed[sourceKey] {
			failedIDs[e.AttachmentID] = true
		}

		for _, attachment := range attachments {
			if !failedIDs[attachment.ID] {
				continue
			}
			if retryCount >= maxRetries {
				break
			}

			if err := r.m.migrateSingleAttachment(attachment, targetKey); err != nil {
				utils.LogWarn("添付ファイル %s の再試行に失敗: %v", attachment.ID, err)
			} else {
				successCount++
			}

			retryCount++
		}
	}

	utils.LogInfo("添付ファイル再試行: %d 件試行、%d 件成功", retryCount, successCount)
	return successCount, nil
}

// FullRetry はイシュー、コメント、添付ファイルの順に再試行します
// それぞれ独立した予算で実行します
func (r *RetryService) FullRetry(maxRetries int) error {
	utils.LogInfo("失敗した移行の全体再試行を開始します")

	if _, err := r.RetryFailedIssues(maxRetries); err != nil {
		return err
	}
	if _, err := r.RetryFailedComments(maxRetries); err != nil {
		return err
	}
	if _, err := r.RetryFailedAttachments(maxRetries); err != nil {
		return err
	}

	utils.LogInfo("全体再試行が完了しました")
	return nil
}
