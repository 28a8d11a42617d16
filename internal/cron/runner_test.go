package cronrunner

import (
	"context"
	"testing"
	"time"
)

func TestAddRunsJobsWithBaseContext(t *testing.T) {
	type key struct{}
	base := context.WithValue(context.Background(), key{}, "engine")
	r := New(nil, base)

	got := make(chan context.Context, 1)
	if _, err := r.Add("@every 1s", func(ctx context.Context) {
		select {
		case got <- ctx:
		default:
		}
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Start()
	defer r.Stop()

	select {
	case ctx := <-got:
		if ctx.Value(key{}) != "engine" {
			t.Fatal("job must receive the runner's base context")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestNewDefaultsNilContext(t *testing.T) {
	r := New(nil, nil)
	if r.baseCtx == nil {
		t.Fatal("nil base context must default to Background")
	}
}
