package prompt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		requirePath string
		want        string
	}{
		{"require_path 之后取段", "https://site.test/get-started/what-is-bitcoin", "/get-started/", "what is bitcoin"},
		{"尾部斜杠被去掉", "https://site.test/get-started/wallets/", "/get-started/", "wallets"},
		{"多级子路径", "https://site.test/get-started/wallets/hardware", "/get-started/", "wallets hardware"},
		{"require_path 为空取整个 path", "https://site.test/a/b-c", "", "a b c"},
		{"未命中 require_path 取整个 path", "https://site.test/about", "/get-started/", "about"},
		{"根路径退化为 index", "https://site.test/", "", "index"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Slug(tc.url, tc.requirePath)
			if got != tc.want {
				t.Fatalf("Slug(%q, %q) = %q，期望 %q", tc.url, tc.requirePath, got, tc.want)
			}
		})
	}
}

func TestBuilder_TemplateOnly(t *testing.T) {
	b := Builder{Template: "icon about '%s'"}
	got := b.Build(context.Background(), "https://site.test/x", "wallets")
	if got != "icon about 'wallets'" {
		t.Fatalf("渲染不符合预期：%q", got)
	}
}

func TestBuilder_EnrichFromPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head>
<title>Bitcoin Wallets</title>
<meta name="description" content="How to choose a wallet.">
</head><body></body></html>`))
	}))
	defer srv.Close()

	b := Builder{Template: "icon about '%s'", Enrich: true, Client: srv.Client()}
	got := b.Build(context.Background(), srv.URL, "wallets")

	if !strings.Contains(got, `"Bitcoin Wallets"`) {
		t.Fatalf("期望包含页面标题：%q", got)
	}
	if !strings.Contains(got, "How to choose a wallet.") {
		t.Fatalf("期望包含页面描述：%q", got)
	}
}

func TestBuilder_EnrichFailureIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := Builder{Template: "icon about '%s'", Enrich: true, Client: &http.Client{Timeout: 2 * time.Second}}
	got := b.Build(context.Background(), srv.URL, "wallets")
	// 抓取失败时必须退化为模板渲染，而不是失败。
	if got != "icon about 'wallets'" {
		t.Fatalf("期望退化为模板渲染：%q", got)
	}
}
