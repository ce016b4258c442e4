// Package openai 实现 OpenAI images API（DALL·E）的生成 provider。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maplesyrupsucker/bulk-dalle/internal/provider"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "dall-e-3"

	// 错误响应体最多读这么多字节（足够放下错误 JSON，防御异常大响应）。
	maxErrorBody = 64 << 10
)

// Provider 调用 POST /v1/images/generations。
//
// BaseURL 可覆盖（测试 / API 网关）；Model 默认 dall-e-3。
type Provider struct {
	APIKey  string
	BaseURL string
	Model   string
}

func (p Provider) Name() string { return "openai" }

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate 发起一次生成调用（单次尝试；重试与限速由上层控制）。
func (p Provider) Generate(ctx context.Context, req provider.Request, c *http.Client) (provider.Result, error) {
	if c == nil {
		return provider.Result{}, &provider.APIError{
			Provider: p.Name(), Kind: provider.KindInvalidRequest, Message: "http client 为空",
		}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Result{}, &provider.APIError{
			Provider: p.Name(), Kind: provider.KindInvalidRequest, Message: "prompt 为空",
		}
	}

	model := p.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(p.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	body, err := json.Marshal(generateRequest{
		Model:          model,
		Prompt:         req.Prompt,
		N:              1,
		Size:           req.Size,
		Quality:        "standard",
		ResponseFormat: "url",
	})
	if err != nil {
		return provider.Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := c.Do(httpReq)
	if err != nil {
		// 网络层失败：交给上层按瞬时错误处理（Retryable 对非 APIError 返回 true）。
		return provider.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Result{}, p.classifyHTTP(resp)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return provider.Result{}, &provider.APIError{
			Provider: p.Name(), Kind: provider.KindServerError,
			StatusCode: resp.StatusCode, Message: fmt.Sprintf("响应解析失败：%v", err),
		}
	}
	if len(gr.Data) == 0 || strings.TrimSpace(gr.Data[0].URL) == "" {
		return provider.Result{}, &provider.APIError{
			Provider: p.Name(), Kind: provider.KindServerError,
			StatusCode: resp.StatusCode, Message: "响应缺少图片 URL",
		}
	}

	return provider.Result{ImageURL: strings.TrimSpace(gr.Data[0].URL)}, nil
}

// classifyHTTP 把 HTTP 状态码映射为稳定的错误分类：
// - 429：rate_limited（可重试）
// - 408/425：transient_network（可重试）
// - 其余 4xx：invalid_request（鉴权/参数/内容策略，重试无意义）
// - 5xx：server_error
func (p Provider) classifyHTTP(resp *http.Response) error {
	kind := provider.KindInvalidRequest
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = provider.KindRateLimited
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooEarly:
		kind = provider.KindTransient
	case resp.StatusCode >= 500:
		kind = provider.KindServerError
	}

	msg := ""
	if b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		var er errorResponse
		if json.Unmarshal(b, &er) == nil && strings.TrimSpace(er.Error.Message) != "" {
			msg = strings.TrimSpace(er.Error.Message)
		}
	}

	return &provider.APIError{
		Provider:   p.Name(),
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}
