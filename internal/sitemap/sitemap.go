// Package sitemap 负责枚举工作来源：下载并解析 sitemap XML。
//
// sitemap 是整个 run 的输入边界：抓取/解析失败是致命的（没有工作列表就没有 run），
// 由上层映射为 sitemap_fetch_failed / sitemap_parse_failed 并终止。
package sitemap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// FetchError 表示 sitemap 无法下载（网络错误或非 2xx）。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("sitemap 抓取失败：%q：%v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError 表示下载成功但内容不是合法的 sitemap urlset。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sitemap 解析失败：%q：%v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// urlset 对应 sitemaps.org 的 <urlset>。只取 <loc>，其余字段（lastmod 等）忽略。
type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Fetch 下载并解析 sitemap，按文档顺序返回 URL 列表。
//
// 约束：
// - 顺序保持：后续处理顺序 == sitemap 文档顺序（不重排）
// - <loc> 做 TrimSpace；空 loc 跳过
// - sitemapindex（指向子 sitemap 的索引文件）不支持，报 ParseError
func Fetch(ctx context.Context, rawURL string, c *http.Client) ([]string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, &FetchError{URL: rawURL, Err: errors.New("sitemap_url 为空")}
	}
	if c == nil {
		return nil, &FetchError{URL: rawURL, Err: errors.New("http client 为空")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	urls, err := Parse(b)
	if err != nil {
		return nil, &ParseError{URL: rawURL, Err: err}
	}
	return urls, nil
}

// Parse 解析 sitemap XML 字节（纯函数，便于用 fixture 测试）。
func Parse(b []byte) ([]string, error) {
	var set urlset
	if err := xml.Unmarshal(b, &set); err != nil {
		// 可能是 sitemapindex：给出更可操作的提示。
		var idx struct {
			XMLName xml.Name `xml:"sitemapindex"`
		}
		if xml.Unmarshal(b, &idx) == nil {
			return nil, errors.New("这是 sitemapindex（索引文件）；请配置具体的子 sitemap URL")
		}
		return nil, err
	}

	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		urls = append(urls, loc)
	}
	return urls, nil
}
