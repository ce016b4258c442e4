package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeNotFound 表示找不到 bulk-dalle.yaml。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingSitemap 表示配置文件缺少 sitemap_url 字段。
	ErrCodeMissingSitemap = "config_missing_sitemap"
)

const (
	// FileName 是配置文件的固定名称（位于运行根目录下）。
	FileName = "bulk-dalle.yaml"

	// DefaultProvider 是生成 provider 的最终默认值。
	DefaultProvider = "openai"
	// DefaultRequirePath 沿用原始产品：只处理 /get-started/ 下的页面。
	DefaultRequirePath = "/get-started/"
	// DefaultGenerateSize 是生成 API 的请求尺寸（先大图生成，再缩小为图标）。
	DefaultGenerateSize = "1024x1024"
	// DefaultIconSize 是最终图标的边长。
	DefaultIconSize = 256
	// DefaultOutputDir 是图标输出目录（相对运行根目录）。
	DefaultOutputDir = "icons"

	// DefaultRequestInterval 是两次生成调用之间的最小间隔。
	DefaultRequestInterval = 2 * time.Second
	// DefaultRetryAttempts 是生成调用的总尝试次数（含首次）。
	DefaultRetryAttempts = 3
	// DefaultRetryDelay 是重试之间的固定延迟。
	DefaultRetryDelay = 2 * time.Second
	// DefaultAPITimeout 是单次生成尝试的总预算（DALL·E 生成通常需要 10-60s）。
	DefaultAPITimeout = 120 * time.Second
)

// DefaultPromptTemplate 沿用原始产品的提示词；%s 是 slug 槽位。
const DefaultPromptTemplate = "Create a 3D minimalist icon design featuring vibrant, floating tokens and bitcoin coins, representing digital finance and cryptocurrency. Include a dynamic composition of colorful elements. Subject should relate to '%s'. The icon should have a clean, modern style suitable for UI design."

// DefaultExcludePaths 沿用原始产品的语言前缀排除表。
var DefaultExcludePaths = []string{"/de/", "/es/", "/fr/", "/it/", "/ru/", "/zh/", "/ja/"}

// 允许的生成尺寸（OpenAI images API 的合法取值）。
var allowedGenerateSizes = map[string]struct{}{
	"256x256":   {},
	"512x512":   {},
	"1024x1024": {},
	"1792x1024": {},
	"1024x1792": {},
}

// CLIArgs 只包含 CLI 暴露的入口（path/provider/apply），并保留"是否显式指定"的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Provider    string
	ProviderSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 bulk-dalle.yaml 的解析结构。
// 指针字段用于区分"缺省"与"显式零值"（例如 require_path: "" 表示不做前置过滤）。
type FileConfig struct {
	Path       string `yaml:"path"`
	SitemapURL string `yaml:"sitemap_url"`
	Provider   string `yaml:"provider"`
	Apply      *bool  `yaml:"apply"`

	RequirePath  *string  `yaml:"require_path"`
	ExcludePaths []string `yaml:"exclude_paths"`

	OutputDir string `yaml:"output_dir"`

	Icon *IconConfig `yaml:"icon"`

	GenerateSize      string `yaml:"generate_size"`
	RequestIntervalMS *int   `yaml:"request_interval_ms"`

	Retry *RetryConfig `yaml:"retry"`

	APITimeoutMS *int `yaml:"api_timeout_ms"`

	PromptTemplate string `yaml:"prompt_template"`
	EnrichPrompts  bool   `yaml:"enrich_prompts"`

	Proxy      *ProxyConfig `yaml:"proxy"`
	ImageProxy bool         `yaml:"image_proxy"`
}

type IconConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type RetryConfig struct {
	Attempts *int `yaml:"attempts"`
	DelayMS  *int `yaml:"delay_ms"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
//（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string // 运行根目录（绝对路径；cache/、icons/ 都在它下面）

	SitemapURL string
	Provider   string
	Apply      bool

	// APIKey 来自环境（OPENAI_API_KEY），由 cmd 层注入，不进配置文件。
	APIKey string

	RequirePath  string
	ExcludePaths []string

	OutputDir string // 图标输出目录（绝对路径）

	IconWidth  int
	IconHeight int

	GenerateSize    string
	RequestInterval time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	APITimeout time.Duration

	PromptTemplate string
	EnrichPrompts  bool

	ProxyURL   string
	ImageProxy bool
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingSitemap:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 sitemap_url", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：读取 <path>/bulk-dalle.yaml
// 2) CLI 未提供 path：读取 <cwd>/bulk-dalle.yaml
// 两种情况下配置文件都是必需的（sitemap_url 只能来自配置文件）。
//
// 覆盖优先级（固定）：
// - path：CLI path > config path > 配置文件所在目录
// - provider：CLI > config > 默认 openai
// - apply：CLI --apply/--apply=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	baseDir := cwdAbs
	if strings.TrimSpace(cli.Path) != "" {
		baseDir = absCleanFrom(cwdAbs, cli.Path)
	}
	cfgPath := filepath.Join(baseDir, FileName)

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.SitemapURL) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingSitemap, Path: cfgPath}
	}

	// path：CLI > config > 配置文件所在目录。
	absPath := baseDir
	if strings.TrimSpace(cli.Path) == "" && strings.TrimSpace(fc.Path) != "" {
		absPath = absCleanFrom(baseDir, fc.Path)
	}

	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	sitemapURL := strings.TrimSpace(fc.SitemapURL)
	if u, err := url.Parse(sitemapURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid(fmt.Errorf("sitemap_url 无效：%q", sitemapURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(fmt.Errorf("sitemap_url 必须是 http/https：%q", sitemapURL))
	}

	// provider：CLI > config > 默认。
	prov := DefaultProvider
	if cli.ProviderSet {
		prov = cli.Provider
	} else if strings.TrimSpace(fc.Provider) != "" {
		prov = fc.Provider
	}
	if err := validateProvider(prov); err != nil {
		return invalid(err)
	}

	// apply：CLI > config > 默认 false。
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	requirePath := DefaultRequirePath
	if fc.RequirePath != nil {
		requirePath = strings.TrimSpace(*fc.RequirePath)
	}

	excludePaths := DefaultExcludePaths
	if fc.ExcludePaths != nil {
		excludePaths = fc.ExcludePaths
	}

	outputDir := strings.TrimSpace(fc.OutputDir)
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	outputDirAbs := absCleanFrom(absPath, outputDir)

	iconW, iconH := DefaultIconSize, DefaultIconSize
	if fc.Icon != nil {
		if fc.Icon.Width != 0 {
			iconW = fc.Icon.Width
		}
		if fc.Icon.Height != 0 {
			iconH = fc.Icon.Height
		}
	}
	if iconW < 1 || iconW > 4096 || iconH < 1 || iconH > 4096 {
		return invalid(fmt.Errorf("icon 尺寸必须在 [1, 4096]：%dx%d", iconW, iconH))
	}

	generateSize := strings.TrimSpace(fc.GenerateSize)
	if generateSize == "" {
		generateSize = DefaultGenerateSize
	}
	if _, ok := allowedGenerateSizes[generateSize]; !ok {
		return invalid(fmt.Errorf("generate_size 不被支持：%q", generateSize))
	}

	interval := DefaultRequestInterval
	if fc.RequestIntervalMS != nil {
		if *fc.RequestIntervalMS < 0 {
			return invalid(fmt.Errorf("request_interval_ms 不能为负：%d", *fc.RequestIntervalMS))
		}
		interval = time.Duration(*fc.RequestIntervalMS) * time.Millisecond
	}

	attempts := DefaultRetryAttempts
	retryDelay := DefaultRetryDelay
	if fc.Retry != nil {
		if fc.Retry.Attempts != nil {
			attempts = *fc.Retry.Attempts
		}
		if fc.Retry.DelayMS != nil {
			if *fc.Retry.DelayMS < 0 {
				return invalid(fmt.Errorf("retry.delay_ms 不能为负：%d", *fc.Retry.DelayMS))
			}
			retryDelay = time.Duration(*fc.Retry.DelayMS) * time.Millisecond
		}
	}
	// 文档约定：范围建议 [1, 10]；超出截断。
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		attempts = 10
	}

	apiTimeout := DefaultAPITimeout
	if fc.APITimeoutMS != nil {
		if *fc.APITimeoutMS < 1 {
			return invalid(fmt.Errorf("api_timeout_ms 必须为正：%d", *fc.APITimeoutMS))
		}
		apiTimeout = time.Duration(*fc.APITimeoutMS) * time.Millisecond
	}

	promptTemplate := fc.PromptTemplate
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = DefaultPromptTemplate
	}
	if strings.Count(promptTemplate, "%s") != 1 {
		return invalid(fmt.Errorf("prompt_template 必须恰好包含一个 %%s 槽位"))
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}
	if fc.ImageProxy && proxyURL == "" {
		return invalid(fmt.Errorf("image_proxy=true 但 proxy.url 为空"))
	}

	return EffectiveConfig{
		Path:            absPath,
		SitemapURL:      sitemapURL,
		Provider:        strings.ToLower(strings.TrimSpace(prov)),
		Apply:           apply,
		RequirePath:     requirePath,
		ExcludePaths:    append([]string(nil), excludePaths...),
		OutputDir:       outputDirAbs,
		IconWidth:       iconW,
		IconHeight:      iconH,
		GenerateSize:    generateSize,
		RequestInterval: interval,
		RetryAttempts:   attempts,
		RetryDelay:      retryDelay,
		APITimeout:      apiTimeout,
		PromptTemplate:  promptTemplate,
		EnrichPrompts:   fc.EnrichPrompts,
		ProxyURL:        proxyURL,
		ImageProxy:      fc.ImageProxy,
	}, nil
}

func validateProvider(p string) error {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "openai":
		return nil
	case "":
		return fmt.Errorf("provider 不能为空")
	default:
		return fmt.Errorf("provider 只能是 openai，实际是 %q", p)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误，由调用方决定语义）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
