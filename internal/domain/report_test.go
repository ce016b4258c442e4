package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		SitemapURL: "https://site.test/sitemap.xml",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{URL: "https://site.test/get-started/b", Status: StatusSkipped},
			{URL: "", Status: StatusFailed}, // config/sitemap 等合成项
			{URL: "https://site.test/get-started/a", Status: StatusGenerated},
			{URL: "https://site.test/get-started/c", Status: StatusPlanned},
		},
	}

	r.Finalize()

	// url=="" 必须排在最后；其余按字典序。
	got := []string{r.Items[0].URL, r.Items[1].URL, r.Items[2].URL, r.Items[3].URL}
	if got[0] != "https://site.test/get-started/a" || got[1] != "https://site.test/get-started/b" ||
		got[2] != "https://site.test/get-started/c" || got[3] != "" {
		t.Fatalf("items 排序不符合契约：%v", got)
	}
	if r.Summary.Generated != 1 || r.Summary.Planned != 1 || r.Summary.Skipped != 1 || r.Summary.Failed != 1 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	// time.Time 在 UTC 下应输出 'Z' 后缀。
	if len(b) == 0 || !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}
