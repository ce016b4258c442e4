package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maplesyrupsucker/bulk-dalle/internal/provider"
)

func TestGenerate_RequestShapeAndResult(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/images/generations" {
			t.Errorf("请求不符合预期：%s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"url": "https://img.test/generated.png"}},
		})
	}))
	defer srv.Close()

	p := Provider{APIKey: "sk-test", BaseURL: srv.URL}
	res, err := p.Generate(context.Background(), provider.Request{
		Prompt: "icon about 'wallets'",
		Size:   "1024x1024",
	}, srv.Client())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.ImageURL != "https://img.test/generated.png" {
		t.Fatalf("ImageURL 不符合预期：%q", res.ImageURL)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization 不符合预期：%q", gotAuth)
	}
	if gotBody["model"] != "dall-e-3" || gotBody["size"] != "1024x1024" ||
		gotBody["quality"] != "standard" || gotBody["n"] != float64(1) ||
		gotBody["response_format"] != "url" {
		t.Fatalf("请求体不符合预期：%v", gotBody)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
	}))
	defer srv.Close()

	p := Provider{APIKey: "sk-test", BaseURL: srv.URL}
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "x", Size: "1024x1024"}, srv.Client())

	var ae *provider.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("期望 APIError，实际：%v", err)
	}
	if ae.Kind != provider.KindRateLimited || ae.StatusCode != 429 {
		t.Fatalf("分类不符合预期：%+v", ae)
	}
	if ae.Message != "Rate limit exceeded" {
		t.Fatalf("应提取 API 错误信息：%+v", ae)
	}
	if !provider.Retryable(err) {
		t.Fatalf("rate_limited 必须可重试")
	}
}

func TestGenerate_InvalidRequestNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid prompt"}}`))
	}))
	defer srv.Close()

	p := Provider{APIKey: "sk-test", BaseURL: srv.URL}
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "x", Size: "1024x1024"}, srv.Client())

	if provider.Kind(err) != provider.KindInvalidRequest {
		t.Fatalf("期望 invalid_request，实际：%v", err)
	}
	if provider.Retryable(err) {
		t.Fatalf("invalid_request 不应重试")
	}
}

func TestGenerate_ServerErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := Provider{APIKey: "sk-test", BaseURL: srv.URL}
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "x", Size: "1024x1024"}, srv.Client())

	if provider.Kind(err) != provider.KindServerError {
		t.Fatalf("期望 server_error，实际：%v", err)
	}
	if provider.Retryable(err) {
		t.Fatalf("server_error 不应重试")
	}
}

func TestGenerate_MissingImageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := Provider{APIKey: "sk-test", BaseURL: srv.URL}
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "x", Size: "1024x1024"}, srv.Client())
	if err == nil {
		t.Fatalf("期望错误")
	}
	if provider.Kind(err) != provider.KindServerError {
		t.Fatalf("缺少图片 URL 应归类为 server_error：%v", err)
	}
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	p := Provider{APIKey: "sk-test"}
	_, err := p.Generate(context.Background(), provider.Request{Prompt: "  ", Size: "1024x1024"}, http.DefaultClient)
	if provider.Kind(err) != provider.KindInvalidRequest {
		t.Fatalf("空 prompt 应是 invalid_request：%v", err)
	}
}
