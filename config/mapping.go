package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultValues はマッピング結果が空の場合に使用するデフォルト値です
type DefaultValues struct {
	Labels      []string `yaml:"labels"`
	Components  []string `yaml:"components"`
	FixVersions []string `yaml:"fixVersions"`
}

// MappingConfig は移行元から移行先への語彙変換テーブルを保持します
// すべてのルックアップは全域的です: テーブルに存在しないキーは
// 元の値のまま通すか、デフォルト値にフォールバックします
type MappingConfig struct {
	IssueTypes   map[string]string `yaml:"issue_types"`
	Priorities   map[string]string `yaml:"priorities"`
	Components   map[string]string `yaml:"components"`
	Versions     map[string]string `yaml:"versions"`
	CustomFields map[string]string `yaml:"custom_fields"`
	Users        map[string]string `yaml:"users"`
	Defaults     DefaultValues     `yaml:"default_values"`
}

// LoadMappingConfig はYAMLファイルからマッピング設定を読み込みます
func LoadMappingConfig(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("マッピング設定読み込みエラー: %w", err)
	}

	var mapping MappingConfig
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("マッピング設定解析エラー: %w", err)
	}

	return &mapping, nil
}

// MapUser はユーザーのメールアドレスをマッピングテーブルで変換します
// テーブルに存在しない場合はデフォルトユーザーを返します（純粋関数）
func MapUser(email string, mapping *MappingConfig, defaultUser string) string {
	if mapped, ok := mapping.Users[email]; ok {
		return mapped
	}
	return defaultUser
}
