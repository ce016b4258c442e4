package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maplesyrupsucker/bulk-dalle/internal/app/run"
	"github.com/maplesyrupsucker/bulk-dalle/internal/config"
	"github.com/maplesyrupsucker/bulk-dalle/internal/domain"
	"github.com/maplesyrupsucker/bulk-dalle/internal/infra/fsx"
	"github.com/maplesyrupsucker/bulk-dalle/internal/provider"
	"github.com/maplesyrupsucker/bulk-dalle/internal/provider/openai"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	// .env 是可选的（API key 的推荐存放位置）；缺失不算错误。
	_ = godotenv.Load()

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:        ra.Path,
		Provider:    ra.Provider,
		ProviderSet: ra.ProviderSet,
		Apply:       ra.Apply,
		ApplySet:    ra.ApplySet,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, ra, err)
		emitReport(rr)
		return 1
	}
	eff.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))

	reg, e := provider.NewRegistry(
		openai.Provider{APIKey: eff.APIKey},
	)
	if e != nil {
		fmt.Fprintf(os.Stderr, "初始化 provider registry 失败：%v\n", e)
		return 1
	}

	// Ctrl-C：停止处理新条目；账本已落盘的部分保证下次续跑。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, reg, obs)

	// apply：必须写入 <path>/cache/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.Path, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Path        string
	Provider    string
	ProviderSet bool
	Apply       bool
	ApplySet    bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--provider":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--provider 需要一个值")
			}
			i++
			ra.Provider = args[i]
			ra.ProviderSet = true
		case strings.HasPrefix(a, "--provider="):
			ra.Provider = strings.TrimPrefix(a, "--provider=")
			ra.ProviderSet = true
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return runArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	if ra.ProviderSet {
		switch ra.Provider {
		case "openai":
			// ok
		case "":
			return runArgs{}, fmt.Errorf("--provider 不能为空")
		default:
			return runArgs{}, fmt.Errorf("--provider 只能是 openai，实际是 %q", ra.Provider)
		}
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  bulk-dalle run [path] [--provider openai] [--apply[=true|false]]

命令：
  run    运行流程（默认 dry-run）

使用 "bulk-dalle run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  bulk-dalle run [path] [--provider openai] [--apply[=true|false]]

参数：
  --provider  生成 provider（未指定则读配置文件；最终默认 openai）
  --apply     执行生成与落盘（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  -h, --help  显示帮助

环境变量：
  OPENAI_API_KEY  生成 API 的 key（apply 必需；可放在 .env）

配置文件：
  <path>/bulk-dalle.yaml（必需；至少包含 sitemap_url）
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：generated=%d planned=%d skipped=%d failed=%d\n",
			rr.Summary.Generated, rr.Summary.Planned, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.URL
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：generated=%d planned=%d skipped=%d failed=%d\n",
		rr.Summary.Generated, rr.Summary.Planned, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(cwdAbs string, ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(ra.ApplySet && ra.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			URL:       "",
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低"完成后不知道产物在哪"的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, "cache", "report.json"))
	}
	fmt.Fprintf(w, "icons: %s\n", eff.OutputDir)
}
