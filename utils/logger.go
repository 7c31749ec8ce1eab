package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	// InfoLogger は情報レベルのログを出力します
	InfoLogger *log.Logger
	// WarnLogger は警告レベルのログを出力します
	WarnLogger *log.Logger
	// ErrorLogger はエラーレベルのログを出力します
	ErrorLogger *log.Logger
	// DebugLogger はデバッグレベルのログを出力します（ファイルのみ）
	DebugLogger *log.Logger

	logFile *os.File
)

// init関数はパッケージがインポートされたときに自動的に実行されます
func init() {
	InfoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	WarnLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
}

// SetupFileSink はログディレクトリにタイムスタンプ付きのログファイルを作成し、
// コンソールとファイルの両方にログを出力するよう切り替えます
func SetupFileSink(logDir string) error {
	if err := EnsureDir(logDir); err != nil {
		return fmt.Errorf("ログディレクトリ作成エラー: %w", err)
	}

	name := fmt.Sprintf("migration_%s.log", time.Now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ログファイル作成エラー: %w", err)
	}

	logFile = f
	InfoLogger = log.New(io.MultiWriter(os.Stdout, f), "INFO: ", log.Ldate|log.Ltime)
	WarnLogger = log.New(io.MultiWriter(os.Stdout, f), "WARN: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(io.MultiWriter(os.Stderr, f), "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(f, "DEBUG: ", log.Ldate|log.Ltime)

	return nil
}

// CloseLogFile はログファイルをクローズします
func CloseLogFile() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// LogInfo は情報レベルのメッセージをログに記録します
func LogInfo(format string, v ...interface{}) {
	InfoLogger.Printf(format, v...)
}

// LogWarn は警告レベルのメッセージをログに記録します
func LogWarn(format string, v ...interface{}) {
	WarnLogger.Printf(format, v...)
}

// LogError はエラーレベルのメッセージをログに記録します
func LogError(format string, v ...interface{}) {
	ErrorLogger.Printf(format, v...)
}

// LogDebug はデバッグレベルのメッセージをログファイルに記録します
func LogDebug(format string, v ...interface{}) {
	DebugLogger.Printf(format, v...)
}

// TrackTime は関数の実行時間を計測して出力するユーティリティです
func TrackTime(start time.Time, name string) {
	elapsed := time.Since(start)
	LogInfo("%s 完了時間: %s", name, elapsed)
}
