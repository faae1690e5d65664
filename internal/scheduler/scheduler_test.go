package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerRunsTicksSequentially(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, RunImmediately: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var active, maxActive, count int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			if atomic.AddInt32(&count, 1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run 应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未按时退出")
	}
	if maxActive != 1 {
		t.Fatalf("tick 不应重叠, 最大并发 %d", maxActive)
	}
}

func TestSchedulerSurvivesPanicsAndErrors(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, RunImmediately: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, func(context.Context, time.Time) error {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				panic("boom")
			case 2:
				return errors.New("failed")
			default:
				cancel()
			}
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panic 后调度器应继续运行")
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("应至少执行 3 次, 实际 %d", calls)
	}
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 15 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2026, time.February, 18, 11, 7, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2026, time.February, 18, 11, 15, 0, 0, time.UTC)) {
		t.Fatalf("对齐后的下一次 tick 不正确: %s", got)
	}
	exact := time.Date(2026, time.February, 18, 11, 15, 0, 0, time.UTC)
	if got := s.nextTick(exact); !got.Equal(exact.Add(15 * time.Minute)) {
		t.Fatalf("整点时应跳到下一个区间: %s", got)
	}
}

func TestRegistryKeepPolicyIsIdempotent(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	opts := Options{Interval: 15 * time.Minute}
	noop := func(context.Context, time.Time) error { return nil }

	added, err := r.EnqueueUniquePeriodic("PrayerNotificationWork", Keep, opts, noop)
	if err != nil || !added {
		t.Fatalf("首次注册应成功: added=%v err=%v", added, err)
	}
	added, err = r.EnqueueUniquePeriodic("PrayerNotificationWork", Keep, Options{Interval: time.Minute}, noop)
	if err != nil || added {
		t.Fatalf("Keep 策略下重复注册应被忽略: added=%v err=%v", added, err)
	}
	jobs := r.Jobs()
	if len(jobs) != 1 || jobs[0].Interval != 15*time.Minute {
		t.Fatalf("应保留原有任务: %+v", jobs)
	}

	added, err = r.EnqueueUniquePeriodic("PrayerNotificationWork", Replace, Options{Interval: time.Minute}, noop)
	if err != nil || !added {
		t.Fatalf("Replace 策略应替换: added=%v err=%v", added, err)
	}
	if r.Jobs()[0].Interval != time.Minute {
		t.Fatal("替换后间隔应更新")
	}
	if !r.Cancel("PrayerNotificationWork") || len(r.Jobs()) != 0 {
		t.Fatal("Cancel 应移除任务")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	noop := func(context.Context, time.Time) error { return nil }
	if _, err := r.EnqueueUniquePeriodic("", Keep, Options{Interval: time.Second}, noop); err == nil {
		t.Fatal("空名称应报错")
	}
	if _, err := r.EnqueueUniquePeriodic("job", Keep, Options{}, noop); err == nil {
		t.Fatal("零间隔应报错")
	}
	if _, err := r.EnqueueUniquePeriodic("job", Keep, Options{Interval: time.Second}, nil); err == nil {
		t.Fatal("nil tick 应报错")
	}
}

func TestRegistryRunStartsJobs(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	seen := map[string]int{}
	record := func(name string) TickFunc {
		return func(context.Context, time.Time) error {
			mu.Lock()
			seen[name]++
			mu.Unlock()
			return nil
		}
	}
	if _, err := r.EnqueueUniquePeriodic("a", Keep, Options{Interval: time.Millisecond, RunImmediately: true}, record("a")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		a := seen["a"]
		mu.Unlock()
		if a > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("任务未执行")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := r.EnqueueUniquePeriodic("b", Keep, Options{Interval: time.Millisecond, RunImmediately: true}, record("b")); err != nil {
		t.Fatal(err)
	}
	for {
		mu.Lock()
		b := seen["b"]
		mu.Unlock()
		if b > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("运行中注册的任务应立即启动")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run 应返回 context.Canceled, 实际 %v", err)
	}
}

func TestRegistryReplaceWaitsForInFlightTick(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, overlap int32
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := func(context.Context, time.Time) error {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		defer atomic.AddInt32(&active, -1)
		close(entered)
		<-release // 忽略 ctx, 模拟无法中断的 tick
		return nil
	}
	if _, err := r.EnqueueUniquePeriodic("job", Keep, Options{Interval: time.Hour, RunImmediately: true}, slow); err != nil {
		t.Fatal(err)
	}
	stopped := make(chan error, 1)
	go func() { stopped <- r.Run(ctx) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("旧任务未开始执行")
	}

	ran := make(chan struct{}, 1)
	fast := func(context.Context, time.Time) error {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		atomic.AddInt32(&active, -1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}
	replaced := make(chan struct{})
	go func() {
		if _, err := r.EnqueueUniquePeriodic("job", Replace, Options{Interval: time.Hour, RunImmediately: true}, fast); err != nil {
			t.Error(err)
		}
		close(replaced)
	}()

	select {
	case <-replaced:
		t.Fatal("旧 tick 未结束前 Replace 不应返回")
	case <-time.After(50 * time.Millisecond):
	}
	if jobs := r.Jobs(); len(jobs) != 0 {
		t.Fatalf("等待期间旧任务应已移除: %+v", jobs)
	}

	close(release)
	select {
	case <-replaced:
	case <-time.After(2 * time.Second):
		t.Fatal("旧 tick 结束后 Replace 应返回")
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("新任务未执行")
	}
	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatal("同名任务的 tick 不应重叠")
	}

	cancel()
	if err := <-stopped; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run 应返回 context.Canceled, 实际 %v", err)
	}
}
