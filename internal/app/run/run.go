// Package run 是执行层：把 sitemap 枚举、过滤、续跑、生成、后处理、落盘
// 串成一次 run，并产出对外稳定的 RunReport。
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/maplesyrupsucker/bulk-dalle/internal/app/planner"
	"github.com/maplesyrupsucker/bulk-dalle/internal/config"
	"github.com/maplesyrupsucker/bulk-dalle/internal/domain"
	"github.com/maplesyrupsucker/bulk-dalle/internal/infra/fsx"
	"github.com/maplesyrupsucker/bulk-dalle/internal/infra/httpx"
	"github.com/maplesyrupsucker/bulk-dalle/internal/infra/imgx"
	"github.com/maplesyrupsucker/bulk-dalle/internal/infra/retryx"
	"github.com/maplesyrupsucker/bulk-dalle/internal/ledger"
	"github.com/maplesyrupsucker/bulk-dalle/internal/prompt"
	"github.com/maplesyrupsucker/bulk-dalle/internal/provider"
	"github.com/maplesyrupsucker/bulk-dalle/internal/sitemap"
)

// 生成图片最大读这么多字节（1024x1024 PNG 实测在 2-4MB；防御异常大响应）。
const maxImageBytes = 32 << 20

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误"降级"为 item 级失败（单条失败不影响其他条目）；
// 只有丧失恢复保证的错误（账本/输出落盘失败）才中止整个 run。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, reg, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:       eff.Path,
		SitemapURL: eff.SitemapURL,
		DryRun:     !eff.Apply,
		StartedAt:  started,
		Items:      make([]domain.ItemResult, 0, 128),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	fatal := func(code, msg string) domain.RunReport {
		rr.Items = append(rr.Items, syntheticFailed(code, msg))
		return finish()
	}

	metaClient, err := httpx.NewMetaClient(eff.ProxyURL)
	if err != nil {
		return fatal(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err))
	}

	// 阶段 1：sitemap。没有工作列表就没有 run，失败是致命的。
	fetchStarted := time.Now()
	urls, err := sitemap.Fetch(ctx, eff.SitemapURL, metaClient)
	if err != nil {
		code := domain.ErrCodeSitemapFetchFailed
		var pe *sitemap.ParseError
		if errors.As(err, &pe) {
			code = domain.ErrCodeSitemapParseFailed
		}
		return fatal(code, err.Error())
	}
	if obs != nil {
		obs.OnPhaseDone("sitemap", map[string]any{"urls": len(urls)}, time.Since(fetchStarted))
	}

	// 阶段 2：过滤（纯函数）。
	kept := planner.FilterURLs(urls, eff.RequirePath, eff.ExcludePaths)
	if obs != nil {
		obs.OnPhaseDone("filter", map[string]any{
			"kept":    len(kept),
			"dropped": len(urls) - len(kept),
		}, 0)
	}

	// 阶段 3：账本加载 + 续跑过滤。
	// 损坏的账本降级为空（告警后从头开始，幂等性保证不重复产出已有图标之外的副作用）；
	// 其它 I/O 错误致命：无法判断哪些已完成，继续跑会破坏"恰好一次"的直觉。
	store := ledger.New(eff.Path, !eff.Apply)
	if err := store.Load(); err != nil {
		if ledger.IsCorruptState(err) {
			if obs != nil {
				obs.OnWarn(fmt.Sprintf("%v；按空账本继续（所有条目视为未完成）", err))
			}
		} else {
			return fatal(domain.ErrCodeIOFailed, fmt.Sprintf("账本读取失败：%v", err))
		}
	}

	items := make([]domain.WorkItem, 0, len(kept))
	for _, u := range kept {
		items = append(items, domain.WorkItem{
			URL:  u,
			Slug: prompt.Slug(u, eff.RequirePath),
		})
	}

	pending := planner.RemainingWork(items, store.Records())
	if obs != nil {
		obs.OnPhaseDone("resume", map[string]any{
			"pending": len(pending),
			"skipped": len(items) - len(pending),
		}, 0)
	}

	// 已完成条目进 report（skipped），带上账本里记录的输出位置。
	pendingSet := make(map[string]struct{}, len(pending))
	for _, it := range pending {
		pendingSet[it.URL] = struct{}{}
	}
	for _, it := range items {
		if _, ok := pendingSet[it.URL]; ok {
			continue
		}
		rec, _ := store.Record(it.URL)
		rr.Items = append(rr.Items, domain.ItemResult{
			URL:    it.URL,
			Slug:   it.Slug,
			Status: domain.StatusSkipped,
			Output: rec.OutputPath,
		})
	}

	// dry-run：只枚举计划，不调 API、不落盘。
	if !eff.Apply {
		for i, it := range pending {
			res := domain.ItemResult{
				URL:    it.URL,
				Slug:   it.Slug,
				Status: domain.StatusPlanned,
				Output: filepath.Join(eff.OutputDir, planner.OutputName(it.URL)),
			}
			rr.Items = append(rr.Items, res)
			if obs != nil {
				obs.OnItemDone(i+1, len(pending), it.URL, res, 0)
			}
		}
		return finish()
	}

	// apply：准备生成所需的全部依赖。
	if eff.APIKey == "" {
		return fatal(domain.ErrCodeConfigInvalid, "OPENAI_API_KEY 未设置；apply 模式需要 API key（可放在 .env）")
	}
	prov, ok := reg.Get(eff.Provider)
	if !ok {
		return fatal(domain.ErrCodeConfigInvalid, fmt.Sprintf("未知 provider：%q", eff.Provider))
	}
	apiClient, err := httpx.NewAPIClient(eff.ProxyURL, eff.APITimeout)
	if err != nil {
		return fatal(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err))
	}
	imageClient, err := httpx.NewImageClient(eff.ProxyURL, eff.ImageProxy)
	if err != nil {
		return fatal(domain.ErrCodeConfigInvalid, err.Error())
	}

	builder := prompt.Builder{
		Template: eff.PromptTemplate,
		Enrich:   eff.EnrichPrompts,
		Client:   metaClient,
	}

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"total_items": len(pending),
			"provider":    prov.Name(),
		}, 0)
	}

	// 执行循环：串行 + 限速。生成 API 按账号计费且限流严格，
	// 串行让速率可预测、失败可解释；这里不做并发。
	pc := pacer{interval: eff.RequestInterval}
	for i, it := range pending {
		if ctx.Err() != nil {
			// 取消：剩余条目不标记不追加；账本已落盘的部分保证下次续跑。
			break
		}
		if err := pc.wait(ctx); err != nil {
			break
		}

		oneStarted := time.Now()
		res, fatalErr := execOne(ctx, eff, it, prov, builder, apiClient, imageClient, store)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, len(pending), it.URL, res, time.Since(oneStarted))
		}
		if fatalErr != nil {
			// 账本/输出落盘失败：恢复保证已破坏，中止整个 run。
			rr.Items = append(rr.Items, syntheticFailed(fatalErr.code, fatalErr.msg))
			break
		}
	}

	return finish()
}

// fatalError 是 execOne 上抛的"必须中止整个 run"的失败。
type fatalError struct {
	code string
	msg  string
}

// execOne 处理一个待生成条目：提示词 -> 生成 -> 下载 -> 缩放 -> 落盘 -> 记账。
//
// item 级失败（生成失败、限流耗尽重试、图片字节无效、下载失败）记入账本 failed
// 并返回 nil fatalError（run 继续）；落盘失败返回非 nil fatalError。
func execOne(ctx context.Context, eff config.EffectiveConfig, it domain.WorkItem, prov provider.Provider, builder prompt.Builder, apiClient, imageClient *http.Client, store *ledger.Store) (domain.ItemResult, *fatalError) {
	item := domain.ItemResult{
		URL:    it.URL,
		Slug:   it.Slug,
		Status: domain.StatusGenerated, // 失败时覆盖
	}

	markFailed := func(code, msg string) (domain.ItemResult, *fatalError) {
		item.Status = domain.StatusFailed
		item.ErrorCode = code
		item.ErrorMsg = msg
		if err := store.MarkFailed(it.URL, msg); err != nil {
			return item, &fatalError{
				code: domain.ErrCodeStateWriteFailed,
				msg:  fmt.Sprintf("账本写入失败：%v", err),
			}
		}
		return item, nil
	}

	it.Prompt = builder.Build(ctx, it.URL, it.Slug)

	// 生成：有界重试，只重试限流/瞬时错误。
	var result provider.Result
	attempts := 0
	err := retryx.Do(ctx, eff.RetryAttempts, eff.RetryDelay, provider.Retryable, func(ctx context.Context) error {
		attempts++
		r, e := prov.Generate(ctx, provider.Request{Prompt: it.Prompt, Size: eff.GenerateSize}, apiClient)
		if e != nil {
			return e
		}
		result = r
		return nil
	})
	item.Attempts = attempts
	if err != nil {
		code := domain.ErrCodeGenerateFailed
		if provider.Kind(err) == provider.KindRateLimited {
			code = domain.ErrCodeRateLimited
		}
		return markFailed(code, err.Error())
	}

	// 下载生成图片。生成 URL 是短时效的，下载失败整条算失败（下次 run 重新生成）。
	raw, err := download(ctx, imageClient, result.ImageURL)
	if err != nil {
		return markFailed(domain.ErrCodeGenerateFailed, fmt.Sprintf("下载生成图片失败：%v", err))
	}

	// 后处理：缩放为图标尺寸，统一 PNG。
	icon, err := imgx.ResizePNG(raw, eff.IconWidth, eff.IconHeight)
	if err != nil {
		if imgx.IsUnsupportedFormat(err) {
			return markFailed(domain.ErrCodeImageInvalid, err.Error())
		}
		return markFailed(domain.ErrCodeImageInvalid, fmt.Sprintf("图片后处理失败：%v", err))
	}

	// 落盘（原子覆盖：重跑同一 URL 总是收敛到最新结果）。
	name := planner.OutputName(it.URL)
	if err := fsx.WriteFileAtomicReplace(eff.OutputDir, name, icon); err != nil {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeIOFailed
		item.ErrorMsg = fmt.Sprintf("写入图标失败：%v", err)
		return item, &fatalError{
			code: domain.ErrCodeIOFailed,
			msg:  fmt.Sprintf("输出目录不可写，中止 run：%v", err),
		}
	}
	item.Output = filepath.Join(eff.OutputDir, name)

	// 记账：先落盘图标再记 done。中断恢复时最坏情况是"图标已写但未记账"，
	// 下次 run 会重新生成并原子覆盖，不会出现"记账了但没图标"。
	if err := store.MarkDone(it.URL, item.Output); err != nil {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeStateWriteFailed
		item.ErrorMsg = fmt.Sprintf("账本写入失败：%v", err)
		return item, &fatalError{
			code: domain.ErrCodeStateWriteFailed,
			msg:  fmt.Sprintf("账本写入失败，中止 run：%v", err),
		}
	}

	return item, nil
}

// pacer 保证相邻两次生成调用之间至少间隔 interval（首次不等待）。
type pacer struct {
	interval time.Duration
	last     time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval <= 0 {
		p.last = time.Now()
		return nil
	}
	if !p.last.IsZero() {
		if d := p.interval - time.Since(p.last); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	p.last = time.Now()
	return nil
}

func download(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("image client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		URL:       "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
