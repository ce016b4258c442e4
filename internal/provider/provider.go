package provider

import (
	"context"
	"net/http"
)

// Provider 把"生成 API 的站点差异"限制在 provider 包内部；
// 核心流程只依赖统一接口与稳定的 Result。
//
// 约束：
// - Generate 是单次尝试：不做缓存、不做重试、不做限速（这些由核心 run 层统一实现）
// - 错误尽量以 *APIError 返回，让上层能按 Kind 决定重试与归类
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request, c *http.Client) (Result, error)
}

// Request 是一次生成调用的输入。
type Request struct {
	Prompt string
	Size   string // 例如 "1024x1024"（生成尺寸，不是最终图标尺寸）
}

// Result 是一次生成调用的输出。
// 生成 API 普遍返回临时下载地址而不是内联字节；下载由核心层的 image client 统一完成。
type Result struct {
	ImageURL string
}
