package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigure_KeepsZeroFields(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Request: 3 * time.Second})

	got := Current()
	if got.Request != 3*time.Second {
		t.Errorf("Request = %v, want 3s", got.Request)
	}
	if got.Ping != DefaultPing {
		t.Errorf("Ping = %v, want %v", got.Ping, DefaultPing)
	}
	if got.Action != DefaultAction {
		t.Errorf("Action = %v, want %v", got.Action, DefaultAction)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Wait: time.Minute})
	Reset()
	if Wait() != DefaultWait {
		t.Errorf("Wait() = %v, want %v", Wait(), DefaultWait)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 10*time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}
