package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetaClient_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c, err := NewMetaClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	_ = resp.Body.Close()

	if gotUA == "" || strings.HasPrefix(gotUA, "Go-http-client") {
		t.Fatalf("期望 UA 池生效，实际 UA=%q", gotUA)
	}
}

func TestAPIClient_NoUserAgentPool(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c, err := NewAPIClient("", 5*time.Second)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	_ = resp.Body.Close()

	// API client 不伪装 UA：保持 Go 默认。
	if !strings.HasPrefix(gotUA, "Go-http-client") {
		t.Fatalf("期望默认 UA，实际 UA=%q", gotUA)
	}
}

func TestImageClient_ProxyRequiredWhenImageProxy(t *testing.T) {
	if _, err := NewImageClient("", true); err == nil {
		t.Fatalf("image_proxy=true 且 proxy 为空时应报错")
	}
	if _, err := NewImageClient("http://127.0.0.1:7890", true); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
}
