package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, "test:"), mr
}

type cachedCourse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func TestSetGetRoundTrip(t *testing.T) {
	helper, _ := newTestCache(t)
	ctx := context.Background()

	want := cachedCourse{ID: 7, Name: "Calculus I"}
	if err := helper.Set(ctx, "course:7", want, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got cachedCourse
	if err := helper.Get(ctx, "course:7", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestGetMissingKey(t *testing.T) {
	helper, _ := newTestCache(t)

	var dest cachedCourse
	err := helper.Get(context.Background(), "missing", &dest)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheOrExecuteMissThenHit(t *testing.T) {
	helper, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedCourse{ID: 3, Name: "Physics"}, nil
	}

	var got cachedCourse
	if err := helper.CacheOrExecute(ctx, "course:3", &got, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute: %v", err)
	}
	if calls != 1 || got.Name != "Physics" {
		t.Fatalf("miss path: calls = %d, got = %+v", calls, got)
	}

	// The write-back is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists("test:course:3") {
		if time.Now().After(deadline) {
			t.Fatal("cached value never written back")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var again cachedCourse
	if err := helper.CacheOrExecute(ctx, "course:3", &again, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1 (second call must hit the cache)", calls)
	}
	if again.ID != 3 {
		t.Errorf("hit path returned %+v", again)
	}
}

func TestInvalidatePattern(t *testing.T) {
	helper, mr := newTestCache(t)
	ctx := context.Background()

	for _, key := range []string{"tree:1", "tree:2", "list:all"} {
		if err := helper.Set(ctx, key, cachedCourse{ID: 1}, time.Minute); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "tree:*"); err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}

	if mr.Exists("test:tree:1") || mr.Exists("test:tree:2") {
		t.Error("pattern keys survived invalidation")
	}
	if !mr.Exists("test:list:all") {
		t.Error("unrelated key removed")
	}
}

func TestNilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set on nil client: %v", err)
	}
	if err := helper.Get(ctx, "k", new(string)); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Get on nil client: %v", err)
	}
	if err := helper.InvalidatePattern(ctx, "*"); err != nil {
		t.Errorf("InvalidatePattern on nil client: %v", err)
	}

	calls := 0
	var dest string
	err := helper.CacheOrExecute(ctx, "k", &dest, time.Minute, func() (interface{}, error) {
		calls++
		return "computed", nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute on nil client: %v", err)
	}
	if calls != 1 || dest != "computed" {
		t.Errorf("calls = %d, dest = %q", calls, dest)
	}
}

func TestCacheManagerWithoutRedis(t *testing.T) {
	cm := NewCacheManager(nil)

	if err := cm.HealthCheck(context.Background()); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("HealthCheck = %v, want ErrCacheNotAvailable", err)
	}
	// Invalidation helpers must not panic without a backing client.
	InvalidateCourseCache(context.Background(), cm, 1)
	InvalidateGradeCache(context.Background(), cm, "student-1", 2)
	InvalidateQuestionCache(context.Background(), cm, 3)
}
