package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
// プロセス起動時に一度だけ構築され、以降は変更されません
type Config struct {
	// 移行元JIRA
	SourceURL      string
	SourceUsername string
	SourcePassword string

	// 移行先JIRA
	TargetURL      string
	TargetUsername string
	TargetPassword string

	// プロジェクトキー
	SourceProjectKey string
	TargetProjectKey string

	// マッピングされていないユーザーのデフォルト
	DefaultUser string

	// ディレクトリ
	DataDir   string
	ExportDir string
	LogDir    string

	// マッピング設定ファイル
	MappingConfigFile string

	// タイムアウト（メタデータ取得用と添付ファイル転送用）
	RequestTimeout time.Duration
	ContentTimeout time.Duration
}

// LoadConfig は環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	dataDir := getEnvWithDefault("DATA_DIR", "data")

	config := &Config{
		SourceURL:         strings.TrimRight(os.Getenv("SOURCE_JIRA_URL"), "/"),
		SourceUsername:    os.Getenv("SOURCE_USERNAME"),
		SourcePassword:    os.Getenv("SOURCE_PASSWORD"),
		TargetURL:         strings.TrimRight(os.Getenv("TARGET_JIRA_URL"), "/"),
		TargetUsername:    os.Getenv("TARGET_USERNAME"),
		TargetPassword:    os.Getenv("TARGET_PASSWORD"),
		SourceProjectKey:  os.Getenv("SOURCE_PROJECT_KEY"),
		TargetProjectKey:  os.Getenv("TARGET_PROJECT_KEY"),
		DefaultUser:       getEnvWithDefault("DEFAULT_USER", "admin@example.com"),
		DataDir:           dataDir,
		ExportDir:         getEnvWithDefault("EXPORT_DIR", filepath.Join(dataDir, "exported")),
		LogDir:            getEnvWithDefault("LOG_DIR", filepath.Join(dataDir, "logs")),
		MappingConfigFile: getEnvWithDefault("MAPPING_CONFIG", filepath.Join("config", "mapping_config.yaml")),
		RequestTimeout:    30 * time.Second,
		ContentTimeout:    60 * time.Second,
	}

	return config, nil
}

// ExportFile はスナップショットファイルのパスを返します
func (c *Config) ExportFile() string {
	return filepath.Join(c.ExportDir, c.SourceProjectKey+"_issues.json")
}

// MappingsDir はキーマッピングを保存するディレクトリを返します
func (c *Config) MappingsDir() string {
	return filepath.Join(c.DataDir, "mappings")
}

// IssueMappingFile はキーマッピングストアのパスを返します
func (c *Config) IssueMappingFile() string {
	return filepath.Join(c.MappingsDir(), "issue_mappings.json")
}

// ErrorsDir はエラー台帳を保存するディレクトリを返します
func (c *Config) ErrorsDir() string {
	return filepath.Join(c.LogDir, "errors")
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
