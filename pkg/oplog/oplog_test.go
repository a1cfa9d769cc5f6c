package oplog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shinyes/opdb/pkg/apierrors"
	"github.com/shinyes/opdb/pkg/commit"
	"github.com/shinyes/opdb/pkg/conn"
	"github.com/shinyes/opdb/pkg/doccodec"
	"github.com/shinyes/opdb/pkg/opcol"
	"github.com/shinyes/opdb/pkg/oplog"
	"github.com/shinyes/opdb/pkg/opmodel"
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func newHarness(t *testing.T) (*commit.Coordinator, *oplog.Reader, *conn.Manager, context.Context) {
	t.Helper()
	dir := t.TempDir()
	cm := conn.New(conn.Config{PrimaryPath: filepath.Join(dir, "primary")})
	t.Cleanup(func() { cm.Close() })
	om := opcol.New(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return commit.New(cm, om), oplog.New(cm), cm, ctx
}

// currentLink returns the op link stored on collection/id's snapshot. A
// commit's snapshot must carry it so the new op links back to the
// previous one.
func currentLink(t *testing.T, cm *conn.Manager, ctx context.Context, collection, id string) string {
	t.Helper()
	primary, err := cm.Primary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	doc, found, err := primary.Collection(collection).Get(id)
	if err != nil || !found {
		t.Fatalf("expected stored doc, found=%v err=%v", found, err)
	}
	return doccodec.CastToSnapshot(doccodec.Document(doc)).OpLink
}

func TestGetOpsThroughCreateUpdateDeleteRecreate(t *testing.T) {
	c, r, cm, ctx := newHarness(t)

	must := func(ok bool, err error) {
		t.Helper()
		if err != nil || !ok {
			t.Fatalf("commit failed: ok=%v err=%v", ok, err)
		}
	}

	must(c.Commit(ctx, "docs", "doc1", opmodel.Op{opmodel.FieldV: int64(0)},
		doccodec.Snapshot{ID: "doc1", V: 1, Type: strPtr("json0"), Data: map[string]any{"x": int64(0)}, HasData: true}))

	must(c.Commit(ctx, "docs", "doc1", opmodel.Op{opmodel.FieldV: int64(1)},
		doccodec.Snapshot{ID: "doc1", V: 2, Type: strPtr("json0"), Data: map[string]any{"x": int64(5)}, HasData: true, OpLink: currentLink(t, cm, ctx, "docs", "doc1")}))

	must(c.Commit(ctx, "docs", "doc1", opmodel.Op{opmodel.FieldV: int64(2), opmodel.FieldDel: true},
		doccodec.Snapshot{ID: "doc1", V: 3, Type: nil, HasData: false, OpLink: currentLink(t, cm, ctx, "docs", "doc1")}))

	ops, err := r.GetOps(ctx, "docs", "doc1", i64Ptr(0), nil)
	if err != nil {
		t.Fatalf("GetOps after delete: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops after delete, got %d", len(ops))
	}

	must(c.Commit(ctx, "docs", "doc1", opmodel.Op{opmodel.FieldV: int64(3)},
		doccodec.Snapshot{ID: "doc1", V: 4, Type: strPtr("json0"), Data: map[string]any{}, HasData: true, OpLink: currentLink(t, cm, ctx, "docs", "doc1")}))

	ops, err = r.GetOps(ctx, "docs", "doc1", i64Ptr(0), nil)
	if err != nil {
		t.Fatalf("GetOps after recreate: %v", err)
	}
	if len(ops) != 4 {
		t.Fatalf("expected 4 ops after recreate, got %d", len(ops))
	}
	for i, op := range ops {
		v, _ := op.V()
		if v != int64(i) {
			t.Fatalf("expected op %d to have v=%d, got %d", i, i, v)
		}
	}
}

func TestConcurrentCreateRaceOnlyOneWins(t *testing.T) {
	c, r, cm, ctx := newHarness(t)

	op := opmodel.Op{opmodel.FieldV: int64(0)}
	snap := doccodec.Snapshot{ID: "doc1", V: 1, Type: strPtr("json0"), Data: map[string]any{}, HasData: true}

	ok1, err1 := c.Commit(ctx, "docs", "doc1", op, snap)
	ok2, err2 := c.Commit(ctx, "docs", "doc1", op, snap)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if ok1 == ok2 {
		t.Fatalf("expected exactly one commit to succeed, got ok1=%v ok2=%v", ok1, ok2)
	}

	primary, err := cm.Primary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	doc, found, err := primary.Collection("docs").Get("doc1")
	if err != nil || !found {
		t.Fatalf("expected document to exist, found=%v err=%v", found, err)
	}
	if doc["_v"] != int64(1) {
		t.Fatalf("expected _v=1, got %v", doc["_v"])
	}

	ops, err := r.GetOps(ctx, "docs", "doc1", i64Ptr(0), nil)
	if err != nil {
		t.Fatalf("GetOps: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected exactly 1 linked op despite two op rows, got %d", len(ops))
	}
}

func TestMissingOpDetection(t *testing.T) {
	c, r, cm, ctx := newHarness(t)

	must := func(ok bool, err error) {
		t.Helper()
		if err != nil || !ok {
			t.Fatalf("commit failed: ok=%v err=%v", ok, err)
		}
	}

	must(c.Commit(ctx, "docs", "doc1", opmodel.Op{opmodel.FieldV: int64(0)},
		doccodec.Snapshot{ID: "doc1", V: 1, Type: strPtr("json0"), Data: map[string]any{}, HasData: true}))
	must(c.Commit(ctx, "docs", "doc1", opmodel.Op{opmodel.FieldV: int64(1)},
		doccodec.Snapshot{ID: "doc1", V: 2, Type: strPtr("json0"), Data: map[string]any{}, HasData: true, OpLink: currentLink(t, cm, ctx, "docs", "doc1")}))

	primary, err := cm.Primary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	opColl := primary.Collection(opcol.OpCollectionName("docs"))

	var v0ID string
	// Locate the op whose v is 0 by walking the current snapshot's chain.
	doc, _, err := primary.Collection("docs").Get("doc1")
	if err != nil {
		t.Fatal(err)
	}
	snap := doccodec.CastToSnapshot(doccodec.Document(doc))
	link := snap.OpLink
	for link != "" {
		row, found, err := opColl.Get(link)
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			break
		}
		op := opmodel.Op(row)
		if v, ok := op.V(); ok && v == 0 {
			v0ID = link
			break
		}
		link = op.PrevOpID()
	}
	if v0ID == "" {
		t.Fatal("could not locate op v=0 in chain")
	}
	if err := opColl.Delete(v0ID); err != nil {
		t.Fatal(err)
	}

	_, err = r.GetOps(ctx, "docs", "doc1", i64Ptr(0), nil)
	if !apierrors.IsCode(err, apierrors.CodeMissingOps) {
		t.Fatalf("expected MissingOps, got %v", err)
	}
}
