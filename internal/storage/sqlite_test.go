package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("versions = %v, want [1, ...]", versions)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, hit, err := s.CacheGet("missing", time.Hour); err != nil || hit {
		t.Fatalf("CacheGet(missing) = hit %v, err %v", hit, err)
	}

	payload := []byte(`{"items":[1,2,3]}`)
	if err := s.CachePut("k1", payload, false); err != nil {
		t.Fatalf("CachePut: %v", err)
	}

	got, hit, err := s.CacheGet("k1", time.Hour)
	if err != nil || !hit {
		t.Fatalf("CacheGet = hit %v, err %v", hit, err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %s", got)
	}
}

func TestCacheMutableTTLExpiry(t *testing.T) {
	s := openTestStore(t)
	if err := s.CachePut("k", []byte("v"), false); err != nil {
		t.Fatalf("CachePut: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, hit, err := s.CacheGet("k", time.Nanosecond); err != nil || hit {
		t.Errorf("expired mutable entry: hit %v, err %v", hit, err)
	}

	// Immutable entries ignore the TTL entirely.
	if err := s.CachePut("perm", []byte("fact"), true); err != nil {
		t.Fatalf("CachePut: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := s.CacheGet("perm", time.Nanosecond); !hit {
		t.Error("immutable entry expired")
	}
}

func TestCacheImmutableMismatchRefused(t *testing.T) {
	s := openTestStore(t)
	if err := s.CachePut("fact", []byte("original"), true); err != nil {
		t.Fatalf("CachePut: %v", err)
	}

	// Same payload again is an idempotent no-op.
	if err := s.CachePut("fact", []byte("original"), true); err != nil {
		t.Fatalf("idempotent CachePut: %v", err)
	}

	// A differing payload is refused; the stored value stands.
	if err := s.CachePut("fact", []byte("tampered"), true); err != nil {
		t.Fatalf("mismatched CachePut: %v", err)
	}
	got, hit, err := s.CacheGet("fact", 0)
	if err != nil || !hit {
		t.Fatalf("CacheGet = hit %v, err %v", hit, err)
	}
	if string(got) != "original" {
		t.Errorf("payload = %q, want original preserved", got)
	}
}

func TestCacheMutableOverwrite(t *testing.T) {
	s := openTestStore(t)
	if err := s.CachePut("k", []byte("old"), false); err != nil {
		t.Fatalf("CachePut: %v", err)
	}
	if err := s.CachePut("k", []byte("new"), false); err != nil {
		t.Fatalf("CachePut: %v", err)
	}
	got, _, _ := s.CacheGet("k", time.Hour)
	if string(got) != "new" {
		t.Errorf("payload = %q, want new", got)
	}
}

func TestCachePrune(t *testing.T) {
	s := openTestStore(t)
	s.CachePut("mutable", []byte("a"), false)
	s.CachePut("fact", []byte("b"), true)

	time.Sleep(5 * time.Millisecond)
	n, err := s.CachePrune(time.Nanosecond)
	if err != nil {
		t.Fatalf("CachePrune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}
	if _, hit, _ := s.CacheGet("fact", 0); !hit {
		t.Error("immutable entry pruned")
	}
}

func TestQueryLog(t *testing.T) {
	s := openTestStore(t)

	rec := QueryRecord{
		ID:           "q-1",
		CreatedAt:    time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
		QueryText:    "Was Tim Eggar an MP in March 1992?",
		Intent:       "historical_lookup",
		Confidence:   0.9,
		QualityScore: 0.66,
		Guidance:     "2 of 3 sources returned data",
		State:        "done",
		ResultsJSON:  `[{"source_name":"twfy-people","status":"ok"}]`,
	}
	if err := s.SaveQuery(rec); err != nil {
		t.Fatalf("SaveQuery: %v", err)
	}

	got, err := s.GetQuery("q-1")
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if got.Intent != "historical_lookup" || got.QualityScore != 0.66 || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("GetQuery = %+v", got)
	}

	if _, err := s.GetQuery("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetQuery(nope) err = %v, want ErrNotFound", err)
	}
}

func TestRecentQueriesOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := s.SaveQuery(QueryRecord{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			QueryText: "q " + id,
			Intent:    "member_search",
			State:     "done",
		})
		if err != nil {
			t.Fatalf("SaveQuery(%s): %v", id, err)
		}
	}

	got, err := s.RecentQueries(2)
	if err != nil {
		t.Fatalf("RecentQueries: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("RecentQueries = %v", got)
	}
	// Defaults applied on save.
	if got[0].ResultsJSON != "[]" {
		t.Errorf("ResultsJSON = %q, want []", got[0].ResultsJSON)
	}
}
