package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"jiratojira/config"
	"jiratojira/models"
	"jiratojira/utils"
)

// KeyMappingStore は移行元キーから移行先キーへの永続マッピングです
// 「このイシューは移行済みか」の唯一の情報源になります
// 書き込みは一時ファイルへの全書き出し後のrenameで置き換えるため、
// プロセスがクラッシュしても記録済みのマッピングは壊れません
// 単一プロセスの単一ライターを前提としています
type KeyMappingStore struct {
	path string
}

// NewKeyMappingStore は新しいキーマッピングストアを作成します
func NewKeyMappingStore(cfg *config.Config) *KeyMappingStore {
	return &KeyMappingStore{path: cfg.IssueMappingFile()}
}

// Bootstrap はディレクトリを作成し、ストアが存在しない場合は空のマップで初期化します
func (s *KeyMappingStore) Bootstrap() error {
	if err := utils.EnsureDir(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("マッピングディレクトリ作成エラー: %w", err)
	}

	if utils.FileExists(s.path) {
		return nil
	}

	return s.write(models.IssueMapping{})
}

// Load はマッピング全体を読み込みます
func (s *KeyMappingStore) Load() (models.IssueMapping, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.IssueMapping{}, nil
		}
		return nil, fmt.Errorf("マッピング読み込みエラー: %w", err)
	}

	mapping := models.IssueMapping{}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("マッピング解析エラー: %w", err)
	}

	return mapping, nil
}

// Get は移行元キーに対応する移行先キーを返します
func (s *KeyMappingStore) Get(sourceKey string) (string, bool, error) {
	mapping, err := s.Load()
	if err != nil {
		return "", false, err
	}

	targetKey, ok := mapping[sourceKey]
	return targetKey, ok, nil
}

// Put はマッピングを追加または更新します（冪等なupsert）
// 1つの移行元キーには高々1つの移行先キーしか対応しません
func (s *KeyMappingStore) Put(sourceKey, targetKey string) error {
	mapping, err := s.Load()
	if err != nil {
		return err
	}

	mapping[sourceKey] = targetKey
	return s.write(mapping)
}

// write はマッピング全体を一時ファイルに書き出してからrenameで置き換えます
func (s *KeyMappingStore) write(mapping models.IssueMapping) error {
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("マッピングエンコードエラー: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".issue_mappings_*.json")
	if err != nil {
		return fmt.Errorf("一時ファイル作成エラー: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("マッピング書き込みエラー: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("一時ファイルクローズエラー: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("マッピング置き換えエラー: %w", err)
	}

	return nil
}
