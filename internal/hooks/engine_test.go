package hooks

import (
	"context"
	"testing"
	"time"
)

func TestRun_BlockingHookShortCircuitsOnBlock(t *testing.T) {
	e := NewEngine()
	var secondRan bool

	e.Register(Info{Name: "deny", HookType: PreToolUse, Priority: 10}, func(ctx context.Context, hc Context) (Result, error) {
		return BlockResult("not allowed"), nil
	})
	e.Register(Info{Name: "noop", HookType: PreToolUse, Priority: 0}, func(ctx context.Context, hc Context) (Result, error) {
		secondRan = true
		return ContinueResult(), nil
	})

	result := e.Run(context.Background(), Context{HookType: PreToolUse})
	if !result.IsBlocked() {
		t.Fatalf("expected blocked result, got %+v", result)
	}
	if secondRan {
		t.Error("lower-priority hook ran after an earlier hook blocked")
	}
}

func TestRun_RunsInDescendingPriorityOrder(t *testing.T) {
	e := NewEngine()
	var order []string

	e.Register(Info{Name: "low", HookType: PreToolUse, Priority: 1}, func(ctx context.Context, hc Context) (Result, error) {
		order = append(order, "low")
		return ContinueResult(), nil
	})
	e.Register(Info{Name: "high", HookType: PreToolUse, Priority: 100}, func(ctx context.Context, hc Context) (Result, error) {
		order = append(order, "high")
		return ContinueResult(), nil
	})

	e.Run(context.Background(), Context{HookType: PreToolUse})

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Errorf("order = %v, want [high low]", order)
	}
}

func TestRun_NonForcedTypeRunsInBackground(t *testing.T) {
	e := NewEngine()
	seen := make(chan struct{}, 1)

	e.Register(Info{Name: "record", HookType: PostToolUse}, func(ctx context.Context, hc Context) (Result, error) {
		seen <- struct{}{}
		return ContinueResult(), nil
	})

	result := e.Run(context.Background(), Context{HookType: PostToolUse})
	if result.Action != ActionContinue {
		t.Errorf("Run for a background type returned %+v before the hook could run", result)
	}

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("background hook never ran")
	}
}

func TestRun_ErroringHandlerFailsOpen(t *testing.T) {
	e := NewEngine()
	e.Register(Info{Name: "broken", HookType: PreToolUse}, func(ctx context.Context, hc Context) (Result, error) {
		return Result{}, errBroken
	})

	result := e.Run(context.Background(), Context{HookType: PreToolUse})
	if result.Action != ActionContinue {
		t.Errorf("erroring hook should fail open, got %+v", result)
	}
}

func TestRun_BlockingHookTimesOut(t *testing.T) {
	e := NewEngine()
	e.SetDefaultTimeout(10 * time.Millisecond)
	e.Register(Info{Name: "slow", HookType: PreToolUse}, func(ctx context.Context, hc Context) (Result, error) {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return BlockResult("too slow to matter"), nil
	})

	start := time.Now()
	result := e.Run(context.Background(), Context{HookType: PreToolUse})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Run took %v, want well under the 1s handler delay", elapsed)
	}
	if result.Action != ActionContinue {
		t.Errorf("timed-out hook should fail open, got %+v", result)
	}
}

func TestRun_PerHookTimeoutOverridesDefault(t *testing.T) {
	e := NewEngine()
	e.SetDefaultTimeout(time.Second)
	e.Register(Info{Name: "slow", HookType: PreToolUse, TimeoutMs: 10}, func(ctx context.Context, hc Context) (Result, error) {
		<-ctx.Done()
		return BlockResult("irrelevant"), nil
	})

	start := time.Now()
	e.Run(context.Background(), Context{HookType: PreToolUse})
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Run took %v, want the per-hook 10ms timeout to apply", elapsed)
	}
}

func TestSetDefaultTimeout_IgnoresNonPositive(t *testing.T) {
	e := NewEngine()
	e.SetDefaultTimeout(0)
	e.SetDefaultTimeout(-time.Second)
	if e.defaultTimeout != defaultTimeout {
		t.Errorf("defaultTimeout = %v, want unchanged %v", e.defaultTimeout, defaultTimeout)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

const errBroken = errString("handler exploded")
