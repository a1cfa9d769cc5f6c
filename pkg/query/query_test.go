package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shinyes/opdb/pkg/apierrors"
	"github.com/shinyes/opdb/pkg/conn"
)

func TestCheckQueryRejectsLegacyWrapper(t *testing.T) {
	err := CheckQuery(Query{"$query": map[string]any{}}, true, true)
	if !apierrors.IsCode(err, apierrors.CodeLegacyQueryWrapper) {
		t.Fatalf("expected LegacyQueryWrapper, got %v", err)
	}
}

func TestCheckQueryRejectsCursorOpWithCollectionOp(t *testing.T) {
	err := CheckQuery(Query{"$distinct": map[string]any{"field": "x"}, "$count": true}, true, true)
	if !apierrors.IsCode(err, apierrors.CodeCursorAfterCollectionOp) {
		t.Fatalf("expected CursorMethodAfterCollectionOp, got %v", err)
	}
}

func TestCheckQueryRejectsJSWhenDisabled(t *testing.T) {
	err := CheckQuery(Query{"$where": "true"}, false, true)
	if !apierrors.IsCode(err, apierrors.CodeJSQueriesDisabled) {
		t.Fatalf("expected JSQueriesDisabled, got %v", err)
	}
}

func TestCheckQueryRejectsAggregateWhenDisabled(t *testing.T) {
	err := CheckQuery(Query{"$aggregate": []any{}}, true, false)
	if !apierrors.IsCode(err, apierrors.CodeAggregateDisabled) {
		t.Fatalf("expected AggregateDisabled, got %v", err)
	}
}

func TestCheckQueryRejectsUnknownOperator(t *testing.T) {
	err := CheckQuery(Query{"$bogus": 1}, true, true)
	if !apierrors.IsCode(err, apierrors.CodeMalformedQueryOperator) {
		t.Fatalf("expected MalformedQueryOperator, got %v", err)
	}
}

func TestParseQueryPartitionsBuckets(t *testing.T) {
	q := Query{
		"name":   "bob",
		"$sort":  map[string]any{"name": 1},
		"$limit": 10,
		"$count": true,
	}
	p := ParseQuery(q)
	if _, ok := p.Filter["name"]; !ok {
		t.Fatal("expected base field in filter")
	}
	if len(p.CursorTransforms) != 2 {
		t.Fatalf("expected 2 cursor transforms, got %d", len(p.CursorTransforms))
	}
	if p.CursorOp == nil || p.CursorOp.Name != "$count" {
		t.Fatalf("expected $count cursor op, got %+v", p.CursorOp)
	}
}

func TestMakeQuerySafeInjectsTypeExclusion(t *testing.T) {
	safe := MakeQuerySafe(map[string]any{"name": "bob"})
	clause, ok := safe[fieldType].(map[string]any)
	if !ok {
		t.Fatalf("expected _type clause injected, got %#v", safe)
	}
	if _, ok := clause["$ne"]; !ok {
		t.Fatalf("expected $ne clause, got %#v", clause)
	}
}

func TestMakeQuerySafeLeavesExplicitTypeFilterAlone(t *testing.T) {
	filter := map[string]any{fieldType: map[string]any{"$ne": nil}}
	safe := MakeQuerySafe(filter)
	if _, ok := safe["$and"]; ok {
		t.Fatalf("did not expect $and wrapping when _type already excludes null: %#v", safe)
	}
}

func newEngineHarness(t *testing.T) (*Engine, *conn.Manager, context.Context) {
	t.Helper()
	dir := t.TempDir()
	cm := conn.New(conn.Config{PrimaryPath: filepath.Join(dir, "primary")})
	t.Cleanup(func() { cm.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return New(cm, Config{AllowJSQueries: true, AllowAggregateQueries: true}), cm, ctx
}

func seedDoc(t *testing.T, cm *conn.Manager, ctx context.Context, collection, id string, typ string, extra map[string]any) {
	t.Helper()
	primary, err := cm.Primary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	doc := map[string]any{fieldID: id, fieldV: int64(1), fieldO: "op-" + id}
	if typ == "" {
		doc[fieldType] = nil
	} else {
		doc[fieldType] = typ
	}
	for k, v := range extra {
		doc[k] = v
	}
	if err := primary.Collection(collection).InsertFirstVersion(id, doc); err != nil {
		t.Fatal(err)
	}
}

func TestQueryExcludesDeletedDocsByDefault(t *testing.T) {
	e, cm, ctx := newEngineHarness(t)
	seedDoc(t, cm, ctx, "docs", "alive", "json0", map[string]any{"age": int64(30)})
	seedDoc(t, cm, ctx, "docs", "dead", "", nil)

	results, extra, err := e.Query(ctx, "docs", Query{}, nil)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if extra != nil {
		t.Fatalf("unexpected extra: %v", extra)
	}
	if len(results) != 1 || results[0].ID != "alive" {
		t.Fatalf("expected only the alive doc, got %+v", results)
	}
}

func TestQueryRangeAndSortAndLimit(t *testing.T) {
	e, cm, ctx := newEngineHarness(t)
	seedDoc(t, cm, ctx, "docs", "a", "json0", map[string]any{"age": int64(10)})
	seedDoc(t, cm, ctx, "docs", "b", "json0", map[string]any{"age": int64(20)})
	seedDoc(t, cm, ctx, "docs", "c", "json0", map[string]any{"age": int64(30)})

	q := Query{
		"age":    map[string]any{"$gte": int64(15)},
		"$sort":  map[string]any{"age": -1},
		"$limit": int64(1),
	}
	results, _, err := e.Query(ctx, "docs", q, map[string]any{"age": true})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "c" {
		t.Fatalf("expected highest-age doc first, got %s", results[0].ID)
	}
}

func TestQueryCompoundSortRespectsDeclaredFieldOrder(t *testing.T) {
	e, cm, ctx := newEngineHarness(t)
	seedDoc(t, cm, ctx, "docs", "a", "json0", map[string]any{"team": "red", "age": int64(40)})
	seedDoc(t, cm, ctx, "docs", "b", "json0", map[string]any{"team": "red", "age": int64(20)})
	seedDoc(t, cm, ctx, "docs", "c", "json0", map[string]any{"team": "blue", "age": int64(99)})

	q := Query{
		"$sort": []any{
			map[string]any{"team": 1},
			map[string]any{"age": -1},
		},
	}
	for i := 0; i < 10; i++ {
		results, _, err := e.Query(ctx, "docs", q, nil)
		if err != nil {
			t.Fatalf("Query error: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		ids := []string{results[0].ID, results[1].ID, results[2].ID}
		if ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
			t.Fatalf("expected order [c, a, b] on every run, got %v", ids)
		}
	}
}

func TestQueryDistinctCollectionOp(t *testing.T) {
	e, cm, ctx := newEngineHarness(t)
	seedDoc(t, cm, ctx, "docs", "a", "json0", map[string]any{"team": "red"})
	seedDoc(t, cm, ctx, "docs", "b", "json0", map[string]any{"team": "red"})
	seedDoc(t, cm, ctx, "docs", "c", "json0", map[string]any{"team": "blue"})

	_, extra, err := e.Query(ctx, "docs", Query{"$distinct": map[string]any{"field": "team"}}, nil)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	teams, ok := extra.([]any)
	if !ok || len(teams) != 2 {
		t.Fatalf("expected 2 distinct teams, got %#v", extra)
	}
}

func TestQueryPollDocRefinesToSingleID(t *testing.T) {
	e, cm, ctx := newEngineHarness(t)
	seedDoc(t, cm, ctx, "docs", "a", "json0", map[string]any{"age": int64(10)})
	seedDoc(t, cm, ctx, "docs", "b", "json0", map[string]any{"age": int64(99)})

	ok, err := e.QueryPollDoc(ctx, "docs", "a", Query{"age": map[string]any{"$lt": int64(50)}})
	if err != nil || !ok {
		t.Fatalf("expected doc a to match, ok=%v err=%v", ok, err)
	}

	ok, err = e.QueryPollDoc(ctx, "docs", "b", Query{"age": map[string]any{"$lt": int64(50)}})
	if err != nil || ok {
		t.Fatalf("expected doc b to not match, ok=%v err=%v", ok, err)
	}
}

func TestQueryPollDocShortCircuitsOnIDMismatch(t *testing.T) {
	e, cm, ctx := newEngineHarness(t)
	seedDoc(t, cm, ctx, "docs", "a", "json0", nil)

	ok, err := e.QueryPollDoc(ctx, "docs", "a", Query{fieldID: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected short-circuit false for mismatched _id constraint")
	}
}

func TestForbiddenJSQueryFailsWhenDisabled(t *testing.T) {
	e, _, ctx := newEngineHarness(t)
	e.cfg.AllowJSQueries = false

	_, _, err := e.Query(ctx, "docs", Query{"$where": "true"}, nil)
	if !apierrors.IsCode(err, apierrors.CodeJSQueriesDisabled) {
		t.Fatalf("expected JSQueriesDisabled, got %v", err)
	}
}
