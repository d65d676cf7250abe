package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedQuiz struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, "quiz:"), mr
}

func TestSetAndGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	want := cachedQuiz{ID: 1, Title: "Go basics"}
	if err := helper.Set(ctx, "id:1", want, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var got cachedQuiz
	if err := helper.Get(ctx, "id:1", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	helper, _ := newTestHelper(t)

	var got cachedQuiz
	err := helper.Get(context.Background(), "id:404", &got)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestNilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "quiz:")
	ctx := context.Background()

	if err := helper.Set(ctx, "id:1", cachedQuiz{ID: 1}, time.Minute); err != nil {
		t.Fatalf("set with nil client should be a no-op, got %v", err)
	}
	var got cachedQuiz
	if err := helper.Get(ctx, "id:1", &got); !errors.Is(err, ErrCacheNotAvailable) {
		t.Fatalf("expected ErrCacheNotAvailable, got %v", err)
	}
	if err := helper.Delete(ctx, "id:1"); err != nil {
		t.Fatalf("delete with nil client should be a no-op, got %v", err)
	}
}

func TestCacheOrExecuteFetchesOnceThenHits(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	fetches := 0
	fetch := func() (any, error) {
		fetches++
		return &cachedQuiz{ID: 2, Title: "Concurrency"}, nil
	}

	var first cachedQuiz
	if err := helper.CacheOrExecute(ctx, "id:2", &first, time.Minute, fetch); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first.Title != "Concurrency" {
		t.Fatalf("unexpected fetched value %+v", first)
	}

	// The cache write is async, wait for the key to land.
	deadline := time.Now().Add(time.Second)
	for !mr.Exists("quiz:id:2") {
		if time.Now().After(deadline) {
			t.Fatalf("cached value never written")
		}
		time.Sleep(time.Millisecond)
	}

	var second cachedQuiz
	if err := helper.CacheOrExecute(ctx, "id:2", &second, time.Minute, fetch); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("fetch ran %d times, want 1", fetches)
	}
	if second != first {
		t.Fatalf("cache hit returned %+v, want %+v", second, first)
	}
}

func TestCacheOrExecutePropagatesFetchError(t *testing.T) {
	helper, _ := newTestHelper(t)

	wantErr := errors.New("db down")
	var got cachedQuiz
	err := helper.CacheOrExecute(context.Background(), "id:3", &got, time.Minute, func() (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestInvalidatePattern(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"list:page:1", "list:page:2", "id:9"} {
		if err := helper.Set(ctx, key, cachedQuiz{ID: 9}, time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "list:*"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	if mr.Exists("quiz:list:page:1") || mr.Exists("quiz:list:page:2") {
		t.Fatalf("pattern keys survived invalidation")
	}
	if !mr.Exists("quiz:id:9") {
		t.Fatalf("unrelated key was invalidated")
	}
}
