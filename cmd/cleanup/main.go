package main

import (
	"flag"
	"fmt"
	"os"

	"jiratojira/config"
	"jiratojira/services"
	"jiratojira/utils"
)

func main() {
	logs := flag.Bool("logs", false, "エラーログを削除する")
	all := flag.Bool("all", false, "すべてのログを削除する")
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help || (!*logs && !*all) {
		fmt.Println("JIRA → JIRA 移行ツール - クリーンアップ")
		fmt.Println()
		fmt.Println("使い方:")
		fmt.Println("  cleanup -logs|-all")
		fmt.Println()
		flag.PrintDefaults()
		if *help {
			return
		}
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	cleaner := services.NewCleanupService(cfg)

	if *all {
		if err := cleaner.ClearAllLogs(); err != nil {
			utils.LogError("クリーンアップに失敗しました: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := cleaner.ClearErrorLogs(); err != nil {
		utils.LogError("クリーンアップに失敗しました: %v", err)
		os.Exit(1)
	}
}
