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
	help := flag.Bool("help", false, "ヘルプを表示する")
	flag.Parse()

	if *help {
		fmt.Println("JIRA → JIRA 移行ツール - 検証")
		fmt.Println()
		fmt.Println("移行結果を検証し、レポートを出力します（移行状態は変更しません）")
		flag.PrintDefaults()
		return
	}

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

	source := api.NewSourceClient(cfg)
	target := api.NewTargetClient(cfg)
	keymap := services.NewKeyMappingStore(cfg)

	validator := services.NewValidationService(cfg, source, target, keymap)
	if err := validator.Bootstrap(); err != nil {
		utils.LogError("検証サービス初期化に失敗しました: %v", err)
		os.Exit(1)
	}

	results, err := validator.FullValidation()
	if err != nil {
		utils.LogError("検証に失敗しました: %v", err)
		os.Exit(1)
	}

	// コンソールサマリー
	fmt.Println()
	fmt.Println("=== 検証サマリー ===")
	printCount("イシュー件数", results.Summary.IssueCount.Source, results.Summary.IssueCount.Target, results.Summary.IssueCount.Match)
	printCount("コメント件数", results.Summary.CommentCount.Source, results.Summary.CommentCount.Target, results.Summary.CommentCount.Match)
	printCount("添付ファイル件数", results.Summary.AttachmentCount.Source, results.Summary.AttachmentCount.Target, results.Summary.AttachmentCount.Match)
	printCategory("マッピング検証", results.Summary.MappedIssues.Valid, results.Summary.MappedIssues.Total)
	printCategory("内容検証", results.Summary.ContentValidation.Valid, results.Summary.ContentValidation.Total)
	printCategory("コメント検証", results.Summary.CommentValidation.Valid, results.Summary.CommentValidation.Total)
	printCategory("添付ファイル検証", results.Summary.AttachmentValidation.Valid, results.Summary.AttachmentValidation.Total)

	fmt.Println()
	if total := results.TotalDiscrepancies(); total > 0 {
		color.Red("不一致が %d 件検出されました", total)
	} else {
		color.Green("不一致は検出されませんでした")
	}
}

func printCount(name string, source, target int, match bool) {
	if match {
		fmt.Printf("%s: 移行元=%d 移行先=%d (OK)\n", name, source, target)
	} else {
		color.Yellow("%s: 移行元=%d 移行先=%d (不一致)", name, source, target)
	}
}

func printCategory(name string, valid, total int) {
	if valid == total {
		fmt.Printf("%s: %d/%d 件有効\n", name, valid, total)
	} else {
		color.Yellow("%s: %d/%d 件有効", name, valid, total)
	}
}
