package domain

// WorkItem 是"一个待生成图标的页面"的最小工作单元。
//
// URL 是全系统的唯一主键（来自 sitemap，保持文档顺序）；
// Slug 在构建工作列表时派生，之后不可变；Prompt 在 exec 阶段填充。
type WorkItem struct {
	URL    string
	Slug   string // 从 URL path 派生的可读标识（连字符替换为空格）
	Prompt string // 提交给生成 API 的完整提示词
}
