// Package adapter exposes the Public Adapter API of §6: the single
// facade the OT server talks to, composing the connection manager, op
// collection manager, commit coordinator, op log reader, query engine,
// and polling optimizer behind one operation table.
package adapter

import (
	"context"
	"time"

	"github.com/shinyes/opdb/pkg/commit"
	"github.com/shinyes/opdb/pkg/conn"
	"github.com/shinyes/opdb/pkg/doccodec"
	"github.com/shinyes/opdb/pkg/opcol"
	"github.com/shinyes/opdb/pkg/oplog"
	"github.com/shinyes/opdb/pkg/opmodel"
	"github.com/shinyes/opdb/pkg/pollopt"
	"github.com/shinyes/opdb/pkg/query"
	"github.com/shinyes/opdb/pkg/store"
)

// Config is the adapter's external configuration surface (§6). Each
// field corresponds to a named configuration key from the operation
// table: PrimaryPath/PrimaryConnector is "mongo", PollPath/PollConnector
// is "mongoPoll", PrimaryOptions/PollOptions is
// "mongoOptions"/"mongoPollOptions", and the remaining fields keep their
// spec names case-converted to Go convention.
type Config struct {
	PrimaryPath      string
	PrimaryConnector conn.Connector
	PrimaryOptions   []store.BadgerOption

	PollPath      string
	PollConnector conn.Connector
	PollOptions   []store.BadgerOption

	PollDelay             time.Duration
	DisableIndexCreation  bool
	AllowJSQueries        bool
	AllowAggregateQueries bool
	// AllowAllQueries implies both AllowJSQueries and AllowAggregateQueries.
	AllowAllQueries bool
}

// Adapter is the Public Adapter API.
type Adapter struct {
	conn   *conn.Manager
	opcol  *opcol.Manager
	commit *commit.Coordinator
	oplog  *oplog.Reader
	query  *query.Engine
}

// New builds an Adapter and starts its (asynchronous) connection.
func New(cfg Config) *Adapter {
	cm := conn.New(conn.Config{
		PrimaryPath:      cfg.PrimaryPath,
		PrimaryConnector: cfg.PrimaryConnector,
		PrimaryOptions:   cfg.PrimaryOptions,
		PollPath:         cfg.PollPath,
		PollConnector:    cfg.PollConnector,
		PollOptions:      cfg.PollOptions,
		PollDelay:        cfg.PollDelay,
	})
	om := opcol.New(cfg.DisableIndexCreation)

	allowJS := cfg.AllowJSQueries || cfg.AllowAllQueries
	allowAggregate := cfg.AllowAggregateQueries || cfg.AllowAllQueries

	return &Adapter{
		conn:   cm,
		opcol:  om,
		commit: commit.New(cm, om),
		oplog:  oplog.New(cm),
		query:  query.New(cm, query.Config{AllowJSQueries: allowJS, AllowAggregateQueries: allowAggregate}),
	}
}

// Commit appends op to collection/id's history and advances its
// snapshot (§4.4).
func (a *Adapter) Commit(ctx context.Context, collection, id string, op opmodel.Op, snap doccodec.Snapshot) (bool, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return false, err
	}
	return a.commit.Commit(ctx, collection, id, op, snap)
}

// GetSnapshot returns collection/id's current snapshot, or a
// deleted-style snapshot (v=0, type=nil, no data) if it does not exist.
func (a *Adapter) GetSnapshot(ctx context.Context, collection, id string, fields map[string]any) (doccodec.Snapshot, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return doccodec.Snapshot{}, err
	}
	primary, err := a.conn.Primary(ctx)
	if err != nil {
		return doccodec.Snapshot{}, err
	}
	doc, found, err := primary.Collection(collection).Get(id)
	if err != nil {
		return doccodec.Snapshot{}, err
	}
	if !found {
		return deletedSnapshot(id), nil
	}

	proj := query.GetProjection(fields)
	projected := query.ApplyProjection(doc, proj)
	snap := doccodec.CastToSnapshot(doccodec.Document(projected))
	snap.ID = id
	return snap, nil
}

func deletedSnapshot(id string) doccodec.Snapshot {
	return doccodec.Snapshot{ID: id, V: 0, Type: nil, HasData: false}
}

// GetSnapshotBulk resolves GetSnapshot for every id, filling in
// deleted-style snapshots for ids that don't exist.
func (a *Adapter) GetSnapshotBulk(ctx context.Context, collection string, ids []string, fields map[string]any) (map[string]doccodec.Snapshot, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	out := make(map[string]doccodec.Snapshot, len(ids))
	for _, id := range ids {
		snap, err := a.GetSnapshot(ctx, collection, id, fields)
		if err != nil {
			return nil, err
		}
		out[id] = snap
	}
	return out, nil
}

// GetOps recovers the linear op sequence [from, to) for collection/id (§4.5).
func (a *Adapter) GetOps(ctx context.Context, collection, id string, from, to *int64) ([]opmodel.Op, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return a.oplog.GetOps(ctx, collection, id, from, to)
}

// GetOpsToSnapshot recovers the ops leading up to a caller-supplied
// snapshot rather than the document's current stored one.
func (a *Adapter) GetOpsToSnapshot(ctx context.Context, collection, id string, from *int64, snap doccodec.Snapshot) ([]opmodel.Op, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return a.oplog.GetOpsToSnapshot(ctx, collection, id, from, snap)
}

// GetOpsBulk resolves GetOps for every id named in either map.
func (a *Adapter) GetOpsBulk(ctx context.Context, collection string, fromMap, toMap map[string]*int64) (map[string][]opmodel.Op, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return a.oplog.GetOpsBulk(ctx, collection, fromMap, toMap)
}

// GetCommittedOpVersion answers the commit coordinator's idempotency
// check for a client retrying a submission it never got a reply for,
// walking the canonical op chain rooted at snapshot's op link rather
// than trusting a raw index hit (§4.4).
func (a *Adapter) GetCommittedOpVersion(ctx context.Context, collection, id string, snapshot doccodec.Snapshot, op opmodel.Op) (*int64, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return a.commit.GetCommittedOpVersion(ctx, collection, id, snapshot, op)
}

// Query executes q against the primary handle (§4.6).
func (a *Adapter) Query(ctx context.Context, collection string, q query.Query, fields map[string]any) ([]doccodec.Snapshot, any, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, nil, err
	}
	return a.query.Query(ctx, collection, q, fields)
}

// QueryPoll executes q against the poll handle, returning only matched ids.
func (a *Adapter) QueryPoll(ctx context.Context, collection string, q query.Query) ([]string, any, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return nil, nil, err
	}
	return a.query.QueryPoll(ctx, collection, q)
}

// QueryPollDoc reports whether id currently matches q.
func (a *Adapter) QueryPollDoc(ctx context.Context, collection, id string, q query.Query) (bool, error) {
	if err := conn.ValidateCollectionName(collection); err != nil {
		return false, err
	}
	return a.query.QueryPollDoc(ctx, collection, id, q)
}

// CanPollDoc reports whether q is evaluable against a single document (§4.7).
func (a *Adapter) CanPollDoc(q query.Query) bool {
	return pollopt.CanPollDoc(q)
}

// SkipPoll reports whether op can be assumed not to change q's result (§4.7).
func (a *Adapter) SkipPoll(id string, op opmodel.Op, q query.Query) bool {
	return pollopt.SkipPoll(id, op, q)
}

// Close releases the underlying store handles. Idempotent after its
// first successful call.
func (a *Adapter) Close() error {
	return a.conn.Close()
}
