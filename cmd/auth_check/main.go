package main

import (
	"os"

	"github.com/fatih/color"

	"jiratojira/api"
	"jiratojira/config"
	"jiratojira/utils"
)

// 移行を実行する前に、移行元と移行先の両方の認証情報を確認するツールです
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	failed := false

	source := api.NewSourceClient(cfg)
	if err := source.CheckAuth(); err != nil {
		color.Red("移行元JIRA認証エラー (%s): %v", cfg.SourceURL, err)
		failed = true
	} else {
		color.Green("移行元JIRA認証成功 (%s)", cfg.SourceURL)
	}

	target := api.NewTargetClient(cfg)
	if err := target.CheckAuth(); err != nil {
		color.Red("移行先JIRA認証エラー (%s): %v", cfg.TargetURL, err)
		failed = true
	} else {
		color.Green("移行先JIRA認証成功 (%s)", cfg.TargetURL)
	}

	if failed {
		os.Exit(1)
	}
}
