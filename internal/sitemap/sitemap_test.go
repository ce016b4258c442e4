package sitemap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const fixture = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://site.test/get-started/what-is-bitcoin</loc></url>
  <url><loc> https://site.test/fr/get-started/what-is-bitcoin </loc></url>
  <url><loc>https://site.test/get-started/wallets</loc></url>
  <url><loc></loc></url>
</urlset>`

func TestParse_OrderPreservedAndTrimmed(t *testing.T) {
	urls, err := Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{
		"https://site.test/get-started/what-is-bitcoin",
		"https://site.test/fr/get-started/what-is-bitcoin",
		"https://site.test/get-started/wallets",
	}
	if len(urls) != len(want) {
		t.Fatalf("期望 %d 条，实际 %d：%v", len(want), len(urls), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("第 %d 条不符（顺序必须保持文档顺序）：%q != %q", i, urls[i], want[i])
		}
	}
}

func TestParse_NotXML(t *testing.T) {
	if _, err := Parse([]byte("not xml at all")); err == nil {
		t.Fatalf("期望解析错误")
	}
}

func TestParse_SitemapIndexRejected(t *testing.T) {
	idx := `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://site.test/sitemap-0.xml</loc></sitemap>
</sitemapindex>`
	_, err := Parse([]byte(idx))
	if err == nil {
		t.Fatalf("sitemapindex 应该被拒绝")
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.URL, srv.Client())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("期望 FetchError，实际：%v", err)
	}
}

func TestFetch_ParseErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a sitemap</html>"))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.URL, srv.Client())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("期望 ParseError，实际：%v", err)
	}
}

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	urls, err := Fetch(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(urls) != 3 {
		t.Fatalf("期望 3 条，实际 %d", len(urls))
	}
}
