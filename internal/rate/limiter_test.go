package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	fixed := time.Date(2026, 1, 1, 10, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	for k := 0; k < 2; k++ {
		r, err := l.Allow(ctx, "ip:1")
		if err != nil || !r.Allowed {
			t.Fatalf("hit %d: allowed=%v err=%v", k, r.Allowed, err)
		}
	}
	r, _ := l.Allow(ctx, "ip:1")
	if r.Allowed {
		t.Fatal("third hit must be rejected")
	}
	if r.RetryAfter != 50*time.Second {
		t.Fatalf("retry after = %s, want 50s", r.RetryAfter)
	}

	// Otra key no comparte ventana.
	if r, _ := l.Allow(ctx, "ip:2"); !r.Allowed {
		t.Fatal("independent key rejected")
	}

	// Ventana siguiente.
	fixed = fixed.Add(time.Minute)
	if r, _ := l.Allow(ctx, "ip:1"); !r.Allowed {
		t.Fatal("new window must allow")
	}
}
