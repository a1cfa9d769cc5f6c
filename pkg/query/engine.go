package query

import (
	"context"

	"github.com/shinyes/opdb/pkg/conn"
	"github.com/shinyes/opdb/pkg/docdb"
	"github.com/shinyes/opdb/pkg/doccodec"
)

// Config gates the two optional operator families (§6).
type Config struct {
	AllowJSQueries        bool
	AllowAggregateQueries bool
}

// Engine is the Query Engine.
type Engine struct {
	conn    *conn.Manager
	cfg     Config
	regexes regexCache
}

// New builds a Query Engine over the given connection manager.
func New(cm *conn.Manager, cfg Config) *Engine {
	return &Engine{conn: cm, cfg: cfg}
}

// Query executes q against the primary handle and returns matched
// snapshots (or, for a collection operation, an empty snapshot list
// plus its scalar result in extra) (§4.6 / §6 query).
func (e *Engine) Query(ctx context.Context, collection string, q Query, fields map[string]any) ([]doccodec.Snapshot, any, error) {
	primary, err := e.conn.Primary(ctx)
	if err != nil {
		return nil, nil, err
	}
	return e.execute(primary, collection, q, fields)
}

// QueryPoll executes q against the poll handle and returns only the
// matched document ids (§6 queryPoll).
func (e *Engine) QueryPoll(ctx context.Context, collection string, q Query) ([]string, any, error) {
	poll, err := e.conn.Poll(ctx)
	if err != nil {
		return nil, nil, err
	}
	docs, extra, err := e.executeRaw(poll, collection, q)
	if err != nil {
		return nil, nil, err
	}
	if extra != nil {
		return nil, extra, nil
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if id, ok := doc[fieldID].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil, nil
}

// QueryPollDoc reports whether document id would currently match q
// (§4.6 queryPollDoc), refining the filter to that single id first.
func (e *Engine) QueryPollDoc(ctx context.Context, collection, id string, q Query) (bool, error) {
	if err := CheckQuery(q, e.cfg.AllowJSQueries, e.cfg.AllowAggregateQueries); err != nil {
		return false, err
	}
	parsed := ParseQuery(q)
	refined, possible := refineFilterForID(parsed.Filter, id)
	if !possible {
		return false, nil
	}
	safe := MakeQuerySafe(refined)

	poll, err := e.conn.Poll(ctx)
	if err != nil {
		return false, err
	}
	coll := poll.Collection(collection)

	found := false
	err = coll.ScanAll(func(doc map[string]any) (bool, error) {
		if e.matches(doc, safe) {
			found = true
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// refineFilterForID rewrites an _id constraint in filter to also
// require id, short-circuiting to possible=false when the existing
// constraint provably excludes it.
func refineFilterForID(filter map[string]any, id string) (refined map[string]any, possible bool) {
	refined = make(map[string]any, len(filter)+1)
	for k, v := range filter {
		refined[k] = v
	}

	existing, has := refined[fieldID]
	if !has {
		refined[fieldID] = id
		return refined, true
	}

	switch v := existing.(type) {
	case string:
		return refined, v == id
	case map[string]any:
		if inList, ok := v["$in"].([]any); ok {
			found := false
			for _, item := range inList {
				if s, ok := item.(string); ok && s == id {
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
		}
		andList, _ := refined["$and"].([]any)
		andList = append(andList,
			map[string]any{fieldID: existing},
			map[string]any{fieldID: id},
		)
		delete(refined, fieldID)
		refined["$and"] = andList
		return refined, true
	default:
		return nil, false
	}
}

func (e *Engine) execute(handle *docdb.Store, collection string, q Query, fields map[string]any) ([]doccodec.Snapshot, any, error) {
	docs, extra, err := e.executeRaw(handle, collection, q)
	if err != nil {
		return nil, nil, err
	}
	if extra != nil {
		return nil, extra, nil
	}

	proj := GetProjection(fields)
	snaps := make([]doccodec.Snapshot, 0, len(docs))
	for _, doc := range docs {
		projected := ApplyProjection(doc, proj)
		snaps = append(snaps, doccodec.CastToSnapshot(doccodec.Document(projected)))
	}
	return snaps, nil, nil
}

func (e *Engine) executeRaw(handle *docdb.Store, collection string, q Query) ([]map[string]any, any, error) {
	if err := CheckQuery(q, e.cfg.AllowJSQueries, e.cfg.AllowAggregateQueries); err != nil {
		return nil, nil, err
	}
	parsed := ParseQuery(q)
	safeFilter := MakeQuerySafe(parsed.Filter)

	coll := handle.Collection(collection)
	docs, err := e.scanMatches(coll, safeFilter)
	if err != nil {
		return nil, nil, err
	}

	if parsed.CollectionOp != nil {
		extra, err := dispatchCollectionOp(*parsed.CollectionOp, docs)
		return nil, extra, err
	}

	docs, err = applyCursorTransforms(docs, parsed.CursorTransforms)
	if err != nil {
		return nil, nil, err
	}

	if parsed.CursorOp != nil {
		extra, err := dispatchCursorOp(*parsed.CursorOp, docs)
		return nil, extra, err
	}

	return docs, nil, nil
}
