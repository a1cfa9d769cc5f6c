package query

import "testing"

func TestParseSortSpecOrderedArrayPreservesDeclaredPriority(t *testing.T) {
	keys, err := parseSortSpec([]any{
		map[string]any{"name": 1},
		map[string]any{"age": -1},
	})
	if err != nil {
		t.Fatalf("parseSortSpec: %v", err)
	}
	if len(keys) != 2 || keys[0].field != "name" || keys[1].field != "age" {
		t.Fatalf("expected [name, age] in declared order, got %+v", keys)
	}
	if keys[0].dir != 1 || keys[1].dir != -1 {
		t.Fatalf("expected directions [1, -1], got %+v", keys)
	}
}

func TestParseSortSpecPlainMapBreaksTiesAlphabetically(t *testing.T) {
	keys, err := parseSortSpec(map[string]any{"zeta": 1, "alpha": -1, "mid": 1})
	if err != nil {
		t.Fatalf("parseSortSpec: %v", err)
	}
	got := []string{keys[0].field, keys[1].field, keys[2].field}
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected alphabetical field order %v, got %v", want, got)
		}
	}
}

func TestSortDocsCompoundTieBreakRespectsPriority(t *testing.T) {
	docs := []map[string]any{
		{"name": "bob", "age": int64(40)},
		{"name": "bob", "age": int64(20)},
		{"name": "alice", "age": int64(99)},
	}
	keys, err := parseSortSpec([]any{
		map[string]any{"name": 1},
		map[string]any{"age": -1},
	})
	if err != nil {
		t.Fatalf("parseSortSpec: %v", err)
	}

	for i := 0; i < 20; i++ {
		trial := make([]map[string]any, len(docs))
		copy(trial, docs)
		sortDocs(trial, keys)
		if trial[0]["name"] != "alice" {
			t.Fatalf("expected alice first, got %+v", trial)
		}
		if trial[1]["name"] != "bob" || trial[1]["age"] != int64(40) {
			t.Fatalf("expected bob/age=40 second (tie broken by declared age priority), got %+v", trial[1])
		}
		if trial[2]["name"] != "bob" || trial[2]["age"] != int64(20) {
			t.Fatalf("expected bob/age=20 last, got %+v", trial[2])
		}
	}
}

func TestParseSortSpecRejectsMalformedArrayEntry(t *testing.T) {
	if _, err := parseSortSpec([]any{map[string]any{"a": 1, "b": 1}}); err == nil {
		t.Fatal("expected error for multi-key entry in ordered $sort array")
	}
	if _, err := parseSortSpec([]any{"not-a-map"}); err == nil {
		t.Fatal("expected error for non-map entry in ordered $sort array")
	}
	if _, err := parseSortSpec(42); err == nil {
		t.Fatal("expected error for non-map, non-array $sort value")
	}
}
