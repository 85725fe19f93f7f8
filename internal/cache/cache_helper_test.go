package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheHelper_SetGet(t *testing.T) {
	_, client := newTestCache(t)
	helper := NewCacheHelper(client, SessionCacheConfig.Prefix)
	ctx := context.Background()

	type sessionView struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}

	if err := helper.Set(ctx, "42", sessionView{ID: 42, Status: "active"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got sessionView
	if err := helper.Get(ctx, "42", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != 42 || got.Status != "active" {
		t.Errorf("Get = %+v", got)
	}
}

func TestCacheHelper_GetMissing(t *testing.T) {
	_, client := newTestCache(t)
	helper := NewCacheHelper(client, ExamCacheConfig.Prefix)

	var dest map[string]any
	if err := helper.Get(context.Background(), "nope", &dest); err != ErrCacheNotFound {
		t.Errorf("Get missing key = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "exam:")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set with nil client = %v, want nil", err)
	}
	var dest string
	if err := helper.Get(ctx, "k", &dest); err != ErrCacheNotAvailable {
		t.Errorf("Get with nil client = %v, want ErrCacheNotAvailable", err)
	}
	if err := helper.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete with nil client = %v, want nil", err)
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	mr, client := newTestCache(t)
	helper := NewCacheHelper(client, "session:")
	ctx := context.Background()

	for _, key := range []string{"7", "7:questions", "8"} {
		if err := helper.Set(ctx, key, "x", time.Minute); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "7*"); err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}

	if mr.Exists("session:7") || mr.Exists("session:7:questions") {
		t.Error("pattern keys should be gone")
	}
	if !mr.Exists("session:8") {
		t.Error("unrelated key should survive")
	}
}

func TestCacheOrExecute(t *testing.T) {
	_, client := newTestCache(t)
	helper := NewCacheHelper(client, "exam:")
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return map[string]string{"title": "Midterm"}, nil
	}

	var first map[string]string
	if err := helper.CacheOrExecute(ctx, "1", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute: %v", err)
	}
	if first["title"] != "Midterm" || calls != 1 {
		t.Fatalf("first call = %+v, calls = %d", first, calls)
	}

	// The cache write is async; wait for the key to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if ok, _ := helper.Exists(ctx, "1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache key never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var second map[string]string
	if err := helper.CacheOrExecute(ctx, "1", &second, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute (cached): %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
}

func TestCacheManager_InvalidateSessionCache(t *testing.T) {
	mr, client := newTestCache(t)
	cm := NewCacheManager(client)
	ctx := context.Background()

	if err := cm.Session.Set(ctx, "5", "view", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cm.Fast.Set(ctx, "user:u1:sessions", "list", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cm.InvalidateSessionCache(ctx, 5, "u1", "test")

	if mr.Exists("session:5") {
		t.Error("session key should be invalidated")
	}
	if mr.Exists("fast:user:u1:sessions") {
		t.Error("user session list should be invalidated")
	}
}
