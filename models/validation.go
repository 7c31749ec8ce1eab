package models

// CountComparison は移行元と移行先の件数比較の結果を表します
type CountComparison struct {
	Source int  `json:"source"`
	Target int  `json:"target"`
	Match  bool `json:"match"`
}

// CategorySummary は検証カテゴリごとの集計を表します
type CategorySummary struct {
	Total int `json:"total"`
	Valid int `json:"valid"`
}

// ValidationSummary は検証結果のサマリーを表します
type ValidationSummary struct {
	IssueCount           CountComparison `json:"issues_count"`
	CommentCount         CountComparison `json:"comments_count"`
	AttachmentCount      CountComparison `json:"attachments_count"`
	MappedIssues         CategorySummary `json:"mapped_issues"`
	ContentValidation    CategorySummary `json:"content_validation"`
	CommentValidation    CategorySummary `json:"comment_validation"`
	AttachmentValidation CategorySummary `json:"attachment_validation"`
}

// Discrepancy は1組のイシューペアで検出された不一致を表します
type Discrepancy struct {
	SourceKey string   `json:"source_key"`
	TargetKey string   `json:"target_key,omitempty"`
	Errors    []string `json:"errors"`
}

// ValidationDetails は検証で検出された不一致の詳細リストです
type ValidationDetails struct {
	InvalidMappings  []Discrepancy `json:"invalid_mappings"`
	ContentErrors    []Discrepancy `json:"content_errors"`
	CommentErrors    []Discrepancy `json:"comment_errors"`
	AttachmentErrors []Discrepancy `json:"attachment_errors"`
}

// ValidationResults は1回の検証実行の結果全体を表します
// 実行のたびに新しく生成されるレポートであり、他のコンポーネントの状態にはなりません
type ValidationResults struct {
	Timestamp string            `json:"timestamp"`
	Summary   ValidationSummary `json:"summary"`
	Details   ValidationDetails `json:"details"`
}

// TotalDiscrepancies は検出された不一致の総数を返します
func (r *ValidationResults) TotalDiscrepancies() int {
	count := 0
	for _, list := range [][]Discrepancy{
		r.Details.InvalidMappings,
		r.Details.ContentErrors,
		r.Details.CommentErrors,
		r.Details.AttachmentErrors,
	} {
		for _, d := range list {
			count += len(d.Errors)
		}
	}
	return count
}
