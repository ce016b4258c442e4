// Package ledger 是 run 之间的"断点续跑账本"：url -> 完成状态。
//
// 持久化策略是写穿（write-through）：每次 Mark* 都把完整状态原子落盘，
// 以 I/O 量换取"任意时刻中断，磁盘状态都恰好反映已完成条目"的恢复保证。
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/maplesyrupsucker/bulk-dalle/internal/domain"
	"github.com/maplesyrupsucker/bulk-dalle/internal/infra/fsx"
	"os"
)

const stateFileName = "state.json"

var ErrReadOnly = errors.New("ledger: read-only")

// CorruptStateError 表示持久化状态存在但无法解析。
// 策略由调用方决定：run 层会告警并按"尚未完成任何条目"继续（而不是中止整个 run）。
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("账本损坏：%q：%v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func IsCorruptState(err error) bool {
	var e *CorruptStateError
	return errors.As(err, &e)
}

// Store 提供 <path>/cache/state.json 的账本读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
// - 单进程单线程访问（run 是串行的），无需加锁
type Store struct {
	Root     string // <path>（运行根目录）
	ReadOnly bool

	records map[string]domain.LedgerRecord
}

func New(root string, readOnly bool) *Store {
	return &Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
		records:  map[string]domain.LedgerRecord{},
	}
}

// Path 返回账本文件的绝对路径。
func (s *Store) Path() string {
	return filepath.Join(s.Root, "cache", stateFileName)
}

// stateFile 是落盘格式。带一层 records 包装，给未来的版本字段留位置。
type stateFile struct {
	Records map[string]domain.LedgerRecord `json:"records"`
}

// Load 读取持久化状态。
//
// - 文件不存在：空账本，不报错（首次运行）
// - 文件损坏：返回 CorruptStateError，且账本处于可用的空状态
// - 其它 I/O 错误：原样返回（上层视为致命）
func (s *Store) Load() error {
	s.records = map[string]domain.LedgerRecord{}

	b, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sf stateFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return &CorruptStateError{Path: s.Path(), Err: err}
	}
	if sf.Records != nil {
		s.records = sf.Records
	}
	return nil
}

// IsDone 判断 url 是否已完成。只有 done 是跳过条件；failed 视为 pending。
func (s *Store) IsDone(url string) bool {
	rec, ok := s.records[url]
	return ok && rec.Status == domain.RecordDone
}

// Record 返回 url 的账本记录（若存在）。
func (s *Store) Record(url string) (domain.LedgerRecord, bool) {
	rec, ok := s.records[url]
	return rec, ok
}

// Records 返回账本的只读快照（供纯函数 RemainingWork 消费）。
func (s *Store) Records() map[string]domain.LedgerRecord {
	out := make(map[string]domain.LedgerRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// MarkDone 幂等地把 url 记为 done 并立即落盘。
// 落盘失败必须向上传播：静默丢失续跑状态会破坏恢复保证。
func (s *Store) MarkDone(url, outputPath string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("url 不能为空")
	}
	s.records[url] = domain.LedgerRecord{
		URL:        url,
		Status:     domain.RecordDone,
		OutputPath: outputPath,
		UpdatedAt:  time.Now().UTC(),
	}
	return s.persist()
}

// MarkFailed 把 url 记为 failed 并立即落盘。
// failed 不阻止下次 run 重试该 url（只有 done 是终态跳过条件）。
func (s *Store) MarkFailed(url, reason string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("url 不能为空")
	}
	s.records[url] = domain.LedgerRecord{
		URL:       url,
		Status:    domain.RecordFailed,
		ErrorMsg:  reason,
		UpdatedAt: time.Now().UTC(),
	}
	return s.persist()
}

func (s *Store) persist() error {
	b, err := json.MarshalIndent(stateFile{Records: s.records}, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(s.Root, "cache"), stateFileName, b)
}
