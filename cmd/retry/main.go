package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/services"
	"jiratojira/utils"
)

func main() {
	issues := flag.Bool("issues", false, "失敗したイシューを再試行する")
	comments := flag.Bool("comments", false, "失敗したコメントを再試行する")
	attachments := flag.Bool("attachments", false, "失敗した添付ファイルを再試行する")
	all := flag.Bool("all", false, "すべての失敗を再試行する")
	retries := flag.Int("retries", 3, "再試行の最大回数（バッチ全体での試行数）")
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help || (!*issues && !*comments && !*attachments && !*all) {
		printHelp()
		if *help {
			return
		}
		os.Exit(1)
	}

	startTime := time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	if err := utils.SetupFileSink(cfg.LogDir); err != nil {
		utils.LogError("ログ初期化に失敗しました: %v", err)
		os.Exit(1)
	}
	defer utils.CloseLogFile()

	mapping, err := config.LoadMappingConfig(cfg.MappingConfigFile)
	if err != nil {
		utils.LogError("マッピング設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	source := api.NewSourceClient(cfg)
	target := api.NewTargetClient(cfg)
	keymap := services.NewKeyMappingStore(cfg)
	ledger := services.NewErrorLedger(cfg)

	if err := keymap.Bootstrap(); err != nil {
		utils.LogError("キーマッピングストア初期化に失敗しました: %v", err)
		os.Exit(1)
	}
	if err := ledger.Bootstrap(); err != nil {
		utils.LogError("エラー台帳初期化に失敗しました: %v", err)
		os.Exit(1)
	}

	migrator := services.NewMigrationService(cfg, mapping, source, target, keymap, ledger)
	handler := services.NewRetryService(migrator)

	switch {
	case *issues:
		if _, err := handler.RetryFailedIssues(*retries); err != nil {
			utils.LogError("イシュー再試行に失敗しました: %v", err)
			os.Exit(1)
		}
	case *comments:
		if _, err := handler.RetryFailedComments(*retries); err != nil {
			utils.LogError("コメント再試行に失敗しました: %v", err)
			os.Exit(1)
		}
	case *attachments:
		if _, err := handler.RetryFailedAttachments(*retries); err != nil {
			utils.LogError("添付ファイル再試行に失敗しました: %v", err)
			os.Exit(1)
		}
	case *all:
		if err := handler.FullRetry(*retries); err != nil {
			utils.LogError("全体再試行に失敗しました: %v", err)
			os.Exit(1)
		}
	}

	color.Green("再試行処理が完了しました (%s)", time.Since(startTime).Round(time.Millisecond))
}

func printHelp() {
	fmt.Println("JIRA → JIRA 移行ツール - 再試行")
	fmt.Println()
	fmt.Println("使い方:")
	fmt.Println("  retry -issues|-comments|-attachments|-all [-retries N]")
	fmt.Println()
	flag.PrintDefaults()
}
