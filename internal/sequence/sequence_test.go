package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sniperthink/chatqueue/internal/storage/pebblestore"
)

func openTestGenerator(t *testing.T) *Generator {
	t.Helper()
	st, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), NoSync: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewGenerator(st, nil)
}

func TestNextStartsAtOneAndIsDense(t *testing.T) {
	g := openTestGenerator(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		n, err := g.Next(ctx, "conv-1")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if n != want {
			t.Fatalf("got %d, want %d", n, want)
		}
	}
}

func TestNextIsPerConversation(t *testing.T) {
	g := openTestGenerator(t)
	ctx := context.Background()

	if n, _ := g.Next(ctx, "conv-a"); n != 1 {
		t.Fatalf("conv-a first = %d", n)
	}
	if n, _ := g.Next(ctx, "conv-a"); n != 2 {
		t.Fatalf("conv-a second = %d", n)
	}
	if n, _ := g.Next(ctx, "conv-b"); n != 1 {
		t.Fatalf("conv-b not independent: %d", n)
	}
}

func TestNextConcurrentNoDuplicates(t *testing.T) {
	g := openTestGenerator(t)
	ctx := context.Background()

	const callers, perCaller = 8, 25
	results := make(chan int64, callers*perCaller)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				n, err := g.Next(ctx, "conv-hot")
				if err != nil {
					t.Errorf("next: %v", err)
					return
				}
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	var all []int64
	for n := range results {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	if len(all) != callers*perCaller {
		t.Fatalf("got %d results", len(all))
	}
	for i, n := range all {
		if n != int64(i+1) {
			t.Fatalf("sequence not dense at index %d: %d", i, n)
		}
	}
}

func TestColdStartReseedsFromShadow(t *testing.T) {
	g := openTestGenerator(t)
	g.CacheTTL = 20 * time.Millisecond
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.Next(ctx, "conv-1"); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	// let the live counter expire; the shadow must carry the high-water mark
	time.Sleep(50 * time.Millisecond)

	n, err := g.Next(ctx, "conv-1")
	if err != nil {
		t.Fatalf("next after expiry: %v", err)
	}
	if n != 4 {
		t.Fatalf("reseeded counter returned %d, want 4", n)
	}
}
