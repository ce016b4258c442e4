// Package planner 汇集 run 的纯决策逻辑：URL 过滤、续跑过滤、输出命名。
// 这些函数不做任何 I/O，可以脱离执行循环单独测试。
package planner

import (
	"net/url"
	"path"
	"strings"

	"github.com/maplesyrupsucker/bulk-dalle/internal/domain"
)

// FilterURLs 应用 require_path 与排除规则，返回过滤后的列表（保持输入顺序）。
//
// 规则（对 URL 的 path 部分匹配，大小写敏感）：
// - requirePath 非空：path 必须包含 requirePath 才保留
// - excludePatterns：命中任意一条即排除（OR 语义）
//   - 以 '/' 开头的 pattern：path 前缀匹配（语言前缀 "/fr/" 的典型用法）
//   - 其它 pattern：path 子串匹配
// - 无法解析的 URL 直接排除（宁可少生成，也不把垃圾喂给生成 API）
func FilterURLs(urls []string, requirePath string, excludePatterns []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Path == "" {
			continue
		}
		p := u.Path

		if requirePath != "" && !strings.Contains(p, requirePath) {
			continue
		}
		if matchesAny(p, excludePatterns) {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func matchesAny(p string, patterns []string) bool {
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if strings.HasPrefix(pat, "/") {
			if strings.HasPrefix(p, pat) {
				return true
			}
			continue
		}
		if strings.Contains(p, pat) {
			return true
		}
	}
	return false
}

// RemainingWork 是续跑过滤：去掉账本中已 done 的条目（保持顺序，纯函数）。
// failed 与缺席都视为 pending，会被保留。
func RemainingWork(items []domain.WorkItem, records map[string]domain.LedgerRecord) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(items))
	for _, it := range items {
		if rec, ok := records[it.URL]; ok && rec.Status == domain.RecordDone {
			continue
		}
		out = append(out, it)
	}
	return out
}

// OutputName 从 URL 派生确定、可复现的图标文件名。
//
// 规则：
// - 取完整 path（而不是 slug），保证不同页面不会塌缩到同一个文件名
// - '/' 替换为 '_'；其余字符只保留 [A-Za-z0-9._-]，非法字符替换为 '_'
// - 根路径退化为 "index"
// - 固定后缀 "_icon.png"
func OutputName(rawURL string) string {
	p := strings.Trim(pathOf(rawURL), "/")
	if p == "" {
		p = "index"
	}
	p = strings.ReplaceAll(p, "/", "_")

	var b strings.Builder
	b.Grow(len(p))
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	// path.Clean 后不可能出现空串，但防御一下拼接结果。
	name := b.String()
	if name == "" {
		name = "index"
	}
	return name + "_icon.png"
}

func pathOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		// 解析失败：退化为对原始串做清洗（OutputName 的确定性比"漂亮"重要）。
		return rawURL
	}
	if u.Path == "" {
		return "/"
	}
	return path.Clean(u.Path)
}
