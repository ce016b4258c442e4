// Package prompt 负责从 URL 派生 slug 并渲染生成提示词。
//
// slug 规则沿用原始产品行为：取 require_path 之后的 path 片段，
// 去掉首尾 '/'，连字符替换为空格（"what-is-bitcoin" -> "what is bitcoin"）。
package prompt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Slug 从 URL 提取可读 slug。
//
// - requirePath 非空且命中：取最后一次出现之后的部分（与 URL 过滤规则一致）
// - 未命中或 requirePath 为空：取整个 path
// - 结果为空（站点根等情况）：退化为 "index"
func Slug(rawURL, requirePath string) string {
	p := pathOf(rawURL)

	if requirePath != "" {
		if i := strings.LastIndex(p, requirePath); i >= 0 {
			p = p[i+len(requirePath):]
		}
	}

	p = strings.Trim(p, "/")
	if p == "" {
		return "index"
	}
	p = strings.ReplaceAll(p, "/", " ")
	return strings.ReplaceAll(p, "-", " ")
}

// Builder 渲染提示词。
//
// Enrich=true 时抓取页面并把 <title> / meta description 拼进提示词，
// 让生成结果更贴合页面内容。抓取失败是静默的：提示词增强是 best-effort，
// 永远不让它变成 item 级失败。
type Builder struct {
	Template string // 必须包含一个 %s（slug 槽位）
	Enrich   bool
	Client   *http.Client // Enrich=true 时必须非空
}

// Build 生成 url 的完整提示词。
func (b Builder) Build(ctx context.Context, rawURL, slug string) string {
	out := fmt.Sprintf(b.Template, slug)

	if !b.Enrich || b.Client == nil {
		return out
	}

	title, desc := b.fetchMeta(ctx, rawURL)
	if title != "" {
		out += fmt.Sprintf(" The page is titled %q.", title)
	}
	if desc != "" {
		out += fmt.Sprintf(" Page description: %s", desc)
	}
	return out
}

func (b Builder) fetchMeta(ctx context.Context, rawURL string) (title, desc string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", ""
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		desc = strings.TrimSpace(v)
	}
	return title, desc
}

func pathOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	return u.Path
}
