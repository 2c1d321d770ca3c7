package cache

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/esvd-explorer/server/internal/filter"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{FileCacheSizeMB: 8, FileTTL: time.Minute, QueryCacheSize: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestQueryKey(t *testing.T) {
	chain := filter.Chain{Biome: filter.Value("Marine"), Ecozone: filter.All(), Ecosystem: filter.All()}

	t.Run("stable", func(t *testing.T) {
		k1 := QueryKey("esvd", "summary", chain, filter.All())
		k2 := QueryKey("esvd", "summary", chain, filter.All())
		if k1 != k2 {
			t.Fatalf("expected stable key, got %q vs %q", k1, k2)
		}
		if !strings.HasPrefix(k1, "q:esvd:summary:") {
			t.Fatalf("unexpected prefix in %q", k1)
		}
	})

	t.Run("allDiffersFromCategoryNamedALL", func(t *testing.T) {
		other := chain
		other.Ecozone = filter.Value("ALL")
		if QueryKey("esvd", "summary", chain, filter.All()) == QueryKey("esvd", "summary", other, filter.All()) {
			t.Fatal("expected ALL and a category labelled ALL to produce different keys")
		}
	})

	t.Run("serviceAndDataset", func(t *testing.T) {
		base := QueryKey("esvd", "points", chain, filter.All())
		if base == QueryKey("esvd", "points", chain, filter.Value("Food")) {
			t.Fatal("expected service to change the key")
		}
		if base == QueryKey("other", "points", chain, filter.All()) {
			t.Fatal("expected dataset to change the key")
		}
		if base == FileKey("esvd", "points", chain, filter.All()) {
			t.Fatal("expected file and query keys to differ")
		}
	})
}

func TestManager_Files(t *testing.T) {
	m := newManager(t)

	if _, ok := m.GetFile("missing"); ok {
		t.Fatal("expected miss")
	}
	want := []byte("service,unique_studies\n")
	if err := m.SetFile("k", want); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	got, ok := m.GetFile("k")
	if !ok || !bytes.Equal(got, want) {
		t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
	}
}

func TestManager_QueryEviction(t *testing.T) {
	m := newManager(t)

	m.SetQuery("a", []byte("1"))
	m.SetQuery("b", []byte("2"))
	m.SetQuery("c", []byte("3"))

	if _, ok := m.GetQuery("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if v, ok := m.GetQuery("c"); !ok || string(v) != "3" {
		t.Fatalf("expected c=3, got %q (ok=%v)", v, ok)
	}
	if n := m.Stats()["query_cache_len"]; n != 2 {
		t.Fatalf("expected 2 query entries, got %v", n)
	}
}
