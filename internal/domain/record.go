package domain

import "time"

const (
	RecordDone   = "done"
	RecordFailed = "failed"
)

// LedgerRecord 是进度账本中某个 URL 的完成状态。
//
// 不变量：
// - 每个 URL 至多一条记录；URL 缺席 == pending
// - 只有 done 让后续 run 跳过该 URL；failed 在下次 run 重新视为 pending
type LedgerRecord struct {
	URL        string    `json:"url"`
	Status     string    `json:"status"` // done | failed
	OutputPath string    `json:"output_path,omitempty"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
