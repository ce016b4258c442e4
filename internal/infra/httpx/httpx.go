package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultMetaTimeout  = 20 * time.Second
	defaultImageTimeout = 60 * time.Second
	defaultRetryMax     = 2
)

// Transport 把"UA 池 + 代理 + keep-alive 策略 + 传输层有界重试"固化为统一策略。
//
// 设计目标：sitemap/页面抓取与图片下载只负责"定位资源 + 读取字节"，
// 不关心网络策略细节。生成 API（POST）不走该 Transport 的重试：
// 它的重试预算由 run 层的 retryx 统一控制。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对"可重放"的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := cloneRequest(req)
		if t.ua != nil && r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.ua.random())
		}
		if t.DisableKeepAlives {
			// 额外保险：即使上层误用了其它 Transport，也尽量不复用连接。
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部"污染"调用方的 request。
	return req.Clone(req.Context())
}

// NewMetaClient 构造用于 sitemap / 页面抓取的 HTTP client。
//
// 规则：
// - proxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 内置 UA 池：每个请求随机 UA（公开站点的 sitemap 常对默认 Go UA 返回 403）
// - 有界重试 + 总超时
func NewMetaClient(proxyURL string) (*http.Client, error) {
	return newClient(strings.TrimSpace(proxyURL), false, defaultMetaTimeout, true)
}

// NewImageClient 构造用于下载生成图片的 HTTP client。
//
// 规则：
// - imageProxy=false：图片直连（忽略 proxyURL）
// - imageProxy=true：图片走 proxyURL，且禁用 keep-alive（每请求新连接）
// - 超时放宽：生成图片是 1024x1024 的 PNG，比页面大一个数量级
func NewImageClient(proxyURL string, imageProxy bool) (*http.Client, error) {
	if !imageProxy {
		return newClient("", false, defaultImageTimeout, false)
	}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, errors.New("image_proxy=true 但 proxy.url 为空")
	}
	return newClient(proxyURL, false, defaultImageTimeout, false)
}

// NewAPIClient 构造用于生成 API（POST）的 HTTP client。
//
// 规则：
// - 不带 UA 池（API 调用以 Authorization 标识身份，无需伪装）
// - 不做传输层重试（POST 不可重放；重试由 run 层的 retryx 控制）
// - timeout 即单次尝试的总预算（DALL·E 生成通常需要 10-60s）
func NewAPIClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}
	return &http.Client{
		Transport: base,
		Timeout:   timeout,
	}, nil
}

func newClient(proxyURL string, disableKeepAlives bool, timeout time.Duration, withUA bool) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		DisableKeepAlives:     disableKeepAlives,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	tr := &Transport{
		Base:              base,
		RetryMax:          defaultRetryMax,
		DisableKeepAlives: disableKeepAlives,
	}
	if withUA {
		tr.ua = globalUA
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	// 尽量保持 UA 列表短小但多样；未来可扩充（不对外暴露配置）。
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
