package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusGenerated = "generated"
	StatusPlanned   = "planned"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeConfigNotFound       = "config_not_found"
	ErrCodeConfigInvalid        = "config_invalid"
	ErrCodeConfigMissingSitemap = "config_missing_sitemap"
	ErrCodeSitemapFetchFailed   = "sitemap_fetch_failed"
	ErrCodeSitemapParseFailed   = "sitemap_parse_failed"
	ErrCodeGenerateFailed       = "generate_failed"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeImageInvalid         = "image_invalid"
	ErrCodeIOFailed             = "io_failed"
	ErrCodeStateWriteFailed     = "state_write_failed"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	Path       string `json:"path"`
	SitemapURL string `json:"sitemap_url"`
	DryRun     bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Generated int `json:"generated"`
	Planned   int `json:"planned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ItemResult struct {
	URL  string `json:"url"`
	Slug string `json:"slug"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// Output 是图标的绝对路径（generated/skipped 为实际文件，planned 为将要写入的位置）。
	Output string `json:"output"`
	// Attempts 是生成 API 的实际尝试次数（仅 apply 且进入生成阶段后非零）。
	Attempts int `json:"attempts"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 url 字典序；url=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].URL
		b := r.Items[j].URL
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusGenerated:
			s.Generated++
		case StatusPlanned:
			s.Planned++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
