package services

import (
	"os"
	"path/filepath"

	"jiratojira/config"
	"jiratojira/utils"
)

// CleanupService はログファイルの削除を処理します
type CleanupService struct {
	cfg *config.Config
}

// NewCleanupService は新しいクリーンアップサービスを作成します
func NewCleanupService(cfg *config.Config) *CleanupService {
	return &CleanupService{cfg: cfg}
}

// ClearErrorLogs はエラー台帳ファイルをすべて削除します
func (c *CleanupService) ClearErrorLogs() error {
	utils.LogInfo("エラーログを削除します")
	return c.clearDir(c.cfg.ErrorsDir())
}

// ClearAllLogs はログディレクトリ配下のファイルをすべて削除します
func (c *CleanupService) ClearAllLogs() error {
	if err := c.ClearErrorLogs(); err != nil {
		return err
	}

	utils.LogInfo("すべてのログを削除します")
	return c.clearDir(c.cfg.LogDir)
}

// clearDir はディレクトリ直下のファイルを削除します（サブディレクトリは残します）
func (c *CleanupService) clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			utils.LogError("%s の削除に失敗: %v", path, err)
			continue
		}
		utils.LogInfo("削除しました: %s", path)
	}

	return nil
}
