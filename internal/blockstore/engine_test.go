/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blockstore_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
)

func newTestEngine(t *testing.T, bufCap int64) *blockstore.Engine {
	t.Helper()
	dir := t.TempDir()
	return blockstore.NewEngine(bufCap, func(_, block cos.UUID) string {
		return filepath.Join(dir, block.String()+".bin")
	})
}

func TestBlockRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		bufCap int64
		nrecs  int
		reclen int
	}{
		{"small-in-memory", blockstore.DefaultBufCap, 100, 16},
		{"forces-spill", 256, 100, 16},
		{"every-record-spills", 16, 50, 32},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng := newTestEngine(t, tc.bufCap)
			task, block := cos.NewUUID(), cos.NewUUID()
			eng.NewTask(task)

			want := make([][]byte, tc.nrecs)
			for i := range want {
				p := make([]byte, tc.reclen)
				for j := range p {
					p[j] = byte((i + j) % 255)
				}
				want[i] = p
			}
			if _, err := eng.Append(task, block, want); err != nil {
				t.Fatalf("append: %v", err)
			}

			got, _, err := eng.Read(task, block, blockstore.Cursor{Limit: blockstore.Items(int64(tc.nrecs) * 2)})
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("got %d records, want %d", len(got), len(want))
			}
			for i := range want {
				if string(got[i]) != string(want[i]) {
					t.Fatalf("record %d mismatch", i)
				}
			}
		})
	}
}

func TestCursorIdempotence(t *testing.T) {
	eng := newTestEngine(t, 64)
	task, block := cos.NewUUID(), cos.NewUUID()
	eng.NewTask(task)

	items := make([][]byte, 20)
	for i := range items {
		items[i] = []byte(fmt.Sprintf("item-%02d", i))
	}
	if _, err := eng.Append(task, block, items); err != nil {
		t.Fatalf("append: %v", err)
	}

	whole, _, err := eng.Read(task, block, blockstore.Cursor{Limit: blockstore.Items(20)})
	if err != nil {
		t.Fatalf("read whole: %v", err)
	}

	first, cur, err := eng.Read(task, block, blockstore.Cursor{Limit: blockstore.Items(7)})
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	rest, _, err := eng.Read(task, block, blockstore.Cursor{Pos: cur.Pos, Limit: blockstore.Items(13)})
	if err != nil {
		t.Fatalf("read rest: %v", err)
	}

	got := append(append([][]byte{}, first...), rest...)
	if len(got) != len(whole) {
		t.Fatalf("split read length %d != whole %d", len(got), len(whole))
	}
	for i := range whole {
		if string(got[i]) != string(whole[i]) {
			t.Fatalf("split read record %d mismatch", i)
		}
	}
}

func TestKVLastWriteWins(t *testing.T) {
	eng := newTestEngine(t, blockstore.DefaultBufCap)
	task, block, key := cos.NewUUID(), cos.NewUUID(), cos.NewUUID()
	eng.NewTask(task)

	if err := eng.KVSet(task, block, key, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := eng.KVSet(task, block, key, []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, err := eng.KVGet(task, block, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Fatalf("got %q, want v2", got)
	}
}

func TestKVUnset(t *testing.T) {
	eng := newTestEngine(t, blockstore.DefaultBufCap)
	task, block, key := cos.NewUUID(), cos.NewUUID(), cos.NewUUID()
	eng.NewTask(task)

	if err := eng.KVSet(task, block, key, []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := eng.KVUnset(task, block, key); err != nil {
		t.Fatal(err)
	}
	got, err := eng.KVGet(task, block, key)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil after unset, got %q", got)
	}
}

func TestRemoveTaskDeletesSpillFiles(t *testing.T) {
	dir := t.TempDir()
	eng := blockstore.NewEngine(32, func(_, block cos.UUID) string {
		return filepath.Join(dir, block.String()+".bin")
	})
	task, block := cos.NewUUID(), cos.NewUUID()
	eng.NewTask(task)
	spill := filepath.Join(dir, block.String()+".bin")

	items := [][]byte{[]byte("0123456789abcdef"), []byte("0123456789abcdef")}
	if _, err := eng.Append(task, block, items); err != nil {
		t.Fatal(err)
	}
	if !eng.Exists(task, block) {
		t.Fatal("expected block to exist")
	}
	if _, err := os.Stat(spill); err != nil {
		t.Fatalf("expected spill file after exceeding bufCap: %v", err)
	}

	eng.RemoveTask(task)
	if eng.Exists(task, block) {
		t.Fatal("expected block to be gone after remove_task")
	}
	if _, err := os.Stat(spill); !os.IsNotExist(err) {
		t.Fatalf("expected spill file removed after remove_task, stat err=%v", err)
	}
}

func TestKVParallel(t *testing.T) {
	eng := newTestEngine(t, blockstore.DefaultBufCap)
	task, block := cos.NewUUID(), cos.NewUUID()
	eng.NewTask(task)

	const n = 2000
	keys := make([]cos.UUID, n)
	for i := range keys {
		keys[i] = cos.NewUUID()
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			val := []byte{byte(i % 255), byte(i % 255)}
			if err := eng.KVSet(task, block, keys[i], val); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := eng.KVGet(task, block, keys[i])
			if err != nil {
				t.Error(err)
				return
			}
			want := []byte{byte(i % 255), byte(i % 255)}
			if string(got) != string(want) {
				t.Errorf("key %d: got %v want %v", i, got, want)
			}
		}()
	}
	wg.Wait()
}

func TestExistsUnknownTask(t *testing.T) {
	eng := newTestEngine(t, blockstore.DefaultBufCap)
	if eng.Exists(cos.NewUUID(), cos.NewUUID()) {
		t.Fatal("expected false for unknown task")
	}
}
