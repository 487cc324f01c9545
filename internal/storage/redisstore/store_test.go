package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sniperthink/chatqueue/internal/storage"
)

// Tests run only against a real Redis named by CHATQ_TEST_REDIS_ADDR, e.g.
//
//	CHATQ_TEST_REDIS_ADDR=127.0.0.1:6379 go test ./internal/storage/redisstore
func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("CHATQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATQ_TEST_REDIS_ADDR not set")
	}
	st, err := Open(context.Background(), Options{Addr: addr})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// testKey namespaces keys per test run so a shared Redis stays usable.
func testKey(suffix string) string {
	return fmt.Sprintf("chatqueue_test/%s/%s", uuid.NewString(), suffix)
}

func TestKVRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	key := testKey("kv")

	if _, err := st.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := st.Set(ctx, key, []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := st.Get(ctx, key)
	if err != nil || string(got) != "v" {
		t.Fatalf("get: %s %v", got, err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := st.Exists(ctx, key); ok {
		t.Fatal("key survives delete")
	}
}

func TestSetNXAndIncr(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	key := testKey("nx")

	if ok, err := st.SetNX(ctx, key, []byte("a"), time.Minute); err != nil || !ok {
		t.Fatalf("first setnx: %v %v", ok, err)
	}
	if ok, err := st.SetNX(ctx, key, []byte("b"), time.Minute); err != nil || ok {
		t.Fatalf("second setnx should lose: %v %v", ok, err)
	}

	ctr := testKey("ctr")
	defer st.Delete(ctx, ctr)
	for want := int64(1); want <= 3; want++ {
		n, err := st.Incr(ctx, ctr)
		if err != nil || n != want {
			t.Fatalf("incr: %d %v, want %d", n, err, want)
		}
	}
}

func TestSets(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	key := testKey("set")
	defer st.Delete(ctx, key)

	if err := st.SetAdd(ctx, key, "a", "b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	members, err := st.SetMembers(ctx, key)
	if err != nil || len(members) != 2 {
		t.Fatalf("members: %v %v", members, err)
	}
	if err := st.SetRemove(ctx, key, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if members, _ = st.SetMembers(ctx, key); len(members) != 1 || members[0] != "b" {
		t.Fatalf("after remove: %v", members)
	}
}

func TestAppendLog(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	part := testKey("log")
	defer st.Delete(ctx, part)

	for _, p := range []string{"one", "two", "three"} {
		if _, err := st.Append(ctx, part, []byte(p)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if n, err := st.Length(ctx, part); err != nil || n != 3 {
		t.Fatalf("length: %d %v", n, err)
	}

	entries, err := st.ReadFrom(ctx, part, 0, 1)
	if err != nil || len(entries) != 1 || string(entries[0].Payload) != "one" {
		t.Fatalf("head: %v %v", entries, err)
	}
	if err := st.DeleteEntry(ctx, part, entries[0]); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	entries, _ = st.ReadFrom(ctx, part, 0, 10)
	if len(entries) != 2 || string(entries[0].Payload) != "two" {
		t.Fatalf("after delete: %v", entries)
	}
}
