package retryx

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func retryableTransient(err error) bool { return errors.Is(err, errTransient) }

func failNTimes(n int) func(ctx context.Context) error {
	count := 0
	return func(ctx context.Context) error {
		count++
		if count <= n {
			return errTransient
		}
		return nil
	}
}

func TestDo_SucceedsWithinBudget(t *testing.T) {
	// 先瞬时失败 2 次再成功；attempts=3 刚好够用。
	err := Do(context.Background(), 3, 0, retryableTransient, failNTimes(2))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
}

func TestDo_BudgetExhausted(t *testing.T) {
	// 同样失败 2 次，但 attempts=2 不够。
	err := Do(context.Background(), 2, 0, retryableTransient, failNTimes(2))
	if !errors.Is(err, errTransient) {
		t.Fatalf("期望 errTransient，实际：%v", err)
	}
}

func TestDo_PermanentErrorNoRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, 0, retryableTransient, func(ctx context.Context) error {
		calls++
		return errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("期望 errPermanent，实际：%v", err)
	}
	if calls != 1 {
		t.Fatalf("永久错误不应重试：调用了 %d 次", calls)
	}
}

func TestDo_ContextCanceledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, 10, time.Second, retryableTransient, func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("期望返回最后一次尝试的错误，实际：%v", err)
	}
	if calls != 1 {
		t.Fatalf("取消后不应再尝试：调用了 %d 次", calls)
	}
}

func TestDo_AttemptsBelowOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 0, 0, retryableTransient, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("attempts<1 应按 1 处理：err=%v calls=%d", err, calls)
	}
}
