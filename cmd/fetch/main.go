package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/services"
	"jiratojira/utils"
)

func main() {
	all := flag.Bool("all", false, "全イシューをエクスポートする")
	project := flag.String("project", "", "移行元プロジェクトキーを上書きする")
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help || !*all {
		fmt.Println("JIRA → JIRA 移行ツール - エクスポート")
		fmt.Println()
		fmt.Println("使い方:")
		fmt.Println("  fetch -all [-project KEY]")
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

	// プロジェクトキーの上書きは構築時のみ（以降Configは変更されない）
	if *project != "" {
		cfg.SourceProjectKey = *project
	}

	if err := utils.SetupFileSink(cfg.LogDir); err != nil {
		utils.LogError("ログ初期化に失敗しました: %v", err)
		os.Exit(1)
	}
	defer utils.CloseLogFile()

	source := api.NewSourceClient(cfg)
	fetcher := services.NewFetchService(cfg, source)

	exportFile, err := fetcher.FetchAllIssues()
	if err != nil {
		utils.LogError("エクスポートに失敗しました: %v", err)
		os.Exit(1)
	}

	color.Green("イシューを %s にエクスポートしました", exportFile)
}
