// Package commit implements the Commit Coordinator of §4.4: the
// two-phase write that appends an op to a document's history and then
// advances its snapshot, in that order, so a crash between the two
// phases always leaves the op log as the single source of truth.
package commit

import (
	"context"

	"github.com/shinyes/opdb/pkg/apierrors"
	"github.com/shinyes/opdb/pkg/conn"
	"github.com/shinyes/opdb/pkg/docdb"
	"github.com/shinyes/opdb/pkg/doccodec"
	"github.com/shinyes/opdb/pkg/opcol"
	"github.com/shinyes/opdb/pkg/opindex"
	"github.com/shinyes/opdb/pkg/oplog"
	"github.com/shinyes/opdb/pkg/opmodel"
)

// Coordinator is the Commit Coordinator. It owns no storage state of its
// own; every call reaches through the connection manager for the
// current primary handle, matching the teacher's pkg/db.Table methods
// taking their store handle from the caller rather than caching one.
type Coordinator struct {
	conn  *conn.Manager
	opcol *opcol.Manager
	oplog *oplog.Reader
}

// New builds a Commit Coordinator over the given connection and op
// collection managers.
func New(cm *conn.Manager, om *opcol.Manager) *Coordinator {
	return &Coordinator{conn: cm, opcol: om, oplog: oplog.New(cm)}
}

// Commit appends op to collection/id's history and advances its
// snapshot to snap, which the caller has already produced by applying
// op against the previous snapshot (§4.4: this coordinator does not
// perform operational transformation, only the durable write). It
// reports ok=false with a nil error on benign write conflicts (a
// concurrent commit already claimed this op's version), and a non-nil
// error only for genuine store failures.
func (c *Coordinator) Commit(ctx context.Context, collection, id string, op opmodel.Op, snap doccodec.Snapshot) (ok bool, err error) {
	v, hasV := op.V()
	if !hasV {
		return false, apierrors.InvalidOpVersion(0)
	}

	if err := c.opcol.EnsureIndexes(collection); err != nil {
		return false, err
	}

	primary, err := c.conn.Primary(ctx)
	if err != nil {
		return false, err
	}

	opCollName := opcol.OpCollectionName(collection)
	opColl := primary.Collection(opCollName)
	docColl := primary.Collection(collection)

	opRow := op.Clone()
	opRow[opmodel.FieldD] = id
	opRow[opmodel.FieldO] = snap.OpLink
	src := op.Src()
	seq := op.Seq()
	indexed := !c.opcol.IndexCreationDisabled()

	var opID string
	err = opColl.Update(func(txn *docdb.Txn) error {
		var insertErr error
		opID, insertErr = txn.InsertAuto(opRow)
		if insertErr != nil {
			return insertErr
		}
		if !indexed {
			return nil
		}
		if err := txn.RawSet(opindex.EncodeDV(opCollName, id, v, opID), []byte(opID)); err != nil {
			return err
		}
		if src != "" {
			if err := txn.RawSet(opindex.EncodeSV(opCollName, src, seq, v, opID), []byte(opID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	cleanup := func() error {
		return opColl.Update(func(txn *docdb.Txn) error {
			if err := txn.Delete(opID); err != nil {
				return err
			}
			if !indexed {
				return nil
			}
			if err := txn.RawDelete(opindex.EncodeDV(opCollName, id, v, opID)); err != nil {
				return err
			}
			if src != "" {
				if err := txn.RawDelete(opindex.EncodeSV(opCollName, src, seq, v, opID)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	doc := doccodec.CastToDoc(id, snap, opID)

	if snap.V == 1 {
		insertErr := docColl.InsertFirstVersion(id, map[string]any(doc))
		switch {
		case insertErr == docdb.ErrDuplicateKey:
			if cerr := cleanup(); cerr != nil {
				return false, cerr
			}
			return false, nil
		case insertErr != nil:
			_ = cleanup()
			return false, insertErr
		default:
			return true, nil
		}
	}

	applied, casErr := docColl.CAS(id, snap.V-1, map[string]any(doc))
	if casErr != nil {
		_ = cleanup()
		return false, casErr
	}
	if !applied {
		if cerr := cleanup(); cerr != nil {
			return false, cerr
		}
		return false, nil
	}
	return true, nil
}

// GetCommittedOpVersion answers §4.4's idempotency check: a client
// retrying a commit it never got a reply for must find its own
// already-applied op rather than double-apply it. It reconstructs the
// canonical op chain reachable from snapshot's op link and looks for an
// entry whose (src, seq) matches op's, returning its v if found.
//
// The chain walk — not a bare {src,seq,v} index lookup — is what makes
// this safe: a commit whose op insert succeeded but whose snapshot CAS
// never applied (a lost race, or a crash between the two phases, §4.4)
// leaves an orphan op indexed under the same (src, seq) that is not
// reachable from any snapshot's op link. Trusting the index alone would
// tell the retrying client its op was already committed at that
// orphan's v, even though the document's stored snapshot never
// advanced — a silent lost update. Walking the chain excludes exactly
// that orphan.
func (c *Coordinator) GetCommittedOpVersion(ctx context.Context, collection, id string, snapshot doccodec.Snapshot, op opmodel.Op) (*int64, error) {
	src := op.Src()
	if src == "" {
		return nil, nil
	}
	seq := op.Seq()

	chain, err := c.oplog.GetOpsToSnapshot(ctx, collection, id, nil, snapshot)
	if err != nil {
		return nil, err
	}
	for _, candidate := range chain {
		if candidate.Src() != src || candidate.Seq() != seq {
			continue
		}
		v, ok := candidate.V()
		if !ok {
			return nil, nil
		}
		return &v, nil
	}
	return nil, nil
}
