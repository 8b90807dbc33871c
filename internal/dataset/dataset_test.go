/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dataset_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/tinylib/msgp/msgp"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/dataset"
)

func decodeString(b []byte) (string, error) { return string(b), nil }

func TestRuntimeDataset(t *testing.T) {
	ds := dataset.NewRuntime([]string{"a", "b", "c"})
	ctx := context.Background()

	got, err := ds.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected drained items: %v", got)
	}

	if _, err := ds.Next(ctx); err != dataset.EOF {
		t.Fatalf("expected EOF after drain, got %v", err)
	}
}

func TestStorageDatasetBatching(t *testing.T) {
	// 23 items fetched in batches of STORAGE_BUFFER=10: 10, 10, 3, then EOF.
	all := make([][]byte, 23)
	for i := range all {
		all[i] = []byte{byte('a' + i%26)}
	}
	calls := 0
	fetch := func(_ context.Context) ([][]byte, error) {
		start := calls * dataset.STORAGE_BUFFER
		calls++
		if start >= len(all) {
			return nil, nil
		}
		end := start + dataset.STORAGE_BUFFER
		if end > len(all) {
			end = len(all)
		}
		return all[start:end], nil
	}

	ds := dataset.NewStorage(dataset.SourceBlockStorage, nil, fetch, decodeString)
	ctx := context.Background()
	got, err := ds.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 23 {
		t.Fatalf("expected 23 items, got %d", len(got))
	}
	if calls != 3 {
		t.Fatalf("expected 3 batch fetches, got %d", calls)
	}
}

func TestStorageDatasetPropagatesFetchError(t *testing.T) {
	errBoom := errors.New("boom")
	fetch := func(context.Context) ([][]byte, error) { return nil, errBoom }
	ds := dataset.NewStorage(dataset.SourceBlockStorage, nil, fetch, decodeString)
	if _, err := ds.Next(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}
}

func TestRuntimeMsgpRoundTrip(t *testing.T) {
	items := [][]byte{[]byte("x"), []byte("yy"), []byte("zzz")}
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := dataset.WriteRuntime(w, items); err != nil {
		t.Fatalf("WriteRuntime: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := msgp.NewReader(bytes.NewReader(buf.Bytes()))
	got, err := dataset.ReadRuntime(r)
	if err != nil {
		t.Fatalf("ReadRuntime: %v", err)
	}
	if len(got) != 3 || string(got[1]) != "yy" {
		t.Fatalf("unexpected round-trip: %v", got)
	}
}

func TestDataRuntime(t *testing.T) {
	d := dataset.NewDataRuntime(42)
	v, err := d.Get()
	if err != nil || v != 42 {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}
}

type fakeGlobal map[string][]byte

func (f fakeGlobal) GetCached(_ cos.UUID, key []byte) ([]byte, bool, error) {
	v, ok := f[string(key)]
	return v, ok, nil
}

func TestDataGlobal(t *testing.T) {
	g := fakeGlobal{"k": []byte("v1")}
	ns := cos.NewUUID()

	d := dataset.NewDataGlobal(g, ns, []byte("k"), decodeString)
	v, err := d.Get()
	if err != nil || v != "v1" {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}

	missing := dataset.NewDataGlobal(g, ns, []byte("nope"), decodeString)
	if _, err := missing.Get(); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

type fakeImmutable map[string][]byte

func (f fakeImmutable) Get(_, key cos.UUID) ([]byte, error) {
	v := f[key.String()]
	if v == nil {
		return nil, nil
	}
	return v, nil
}

func TestDataImmutable(t *testing.T) {
	task := cos.NewUUID()
	key := cos.NewUUID()
	im := fakeImmutable{key.String(): []byte("v2")}

	d := dataset.NewDataImmutable(im, task, key, decodeString)
	v, err := d.Get()
	if err != nil || v != "v2" {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}
}
