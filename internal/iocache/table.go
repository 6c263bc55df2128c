package iocache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gnames/gncity/pkg/feature"
)

var refCols = []string{
	"source_id", "source_gmlid", "source_kind", "attribute",
	"target_gmlid", "target_kind", "detail",
}

// CacheTable stages deferred references of one kind. Inserts are batched
// and flushed when the batch reaches the configured size.
type CacheTable struct {
	name      string
	kind      feature.RefKind
	batchSize int
	be        backend

	mu  sync.Mutex
	buf []feature.DeferredReference

	staged atomic.Int64
}

// Name returns the name of the staging relation.
func (t *CacheTable) Name() string {
	return t.name
}

// Kind returns the kind of references kept by the table.
func (t *CacheTable) Kind() feature.RefKind {
	return t.kind
}

// Staged returns the number of references written to the table, including
// buffered ones.
func (t *CacheTable) Staged() int64 {
	return t.staged.Load()
}

// Insert adds a reference to the batch and flushes a full batch.
func (t *CacheTable) Insert(ctx context.Context, ref feature.DeferredReference) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, ref)
	t.staged.Add(1)
	if len(t.buf) < t.batchSize {
		return nil
	}
	return t.flush(ctx)
}

// ExecuteBatch writes buffered references to the staging storage.
func (t *CacheTable) ExecuteBatch(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flush(ctx)
}

// Unflushed removes buffered references that did not reach the staging
// storage and returns them.
func (t *CacheTable) Unflushed() []feature.DeferredReference {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := t.buf
	t.buf = nil
	return res
}

// flush expects the lock to be held.
func (t *CacheTable) flush(ctx context.Context) error {
	if len(t.buf) == 0 {
		return nil
	}

	rows := make([][]any, len(t.buf))
	for i, v := range t.buf {
		rows[i] = []any{
			v.SourceID,
			v.SourceGMLID,
			v.SourceKind,
			v.Attribute,
			v.TargetGMLID,
			string(v.TargetKind),
			v.Detail,
		}
	}

	if err := t.be.copyRows(ctx, t.name, refCols, rows); err != nil {
		return InsertError(t.name, len(rows), err)
	}
	t.buf = t.buf[:0]
	return nil
}

// Count returns the number of flushed rows.
func (t *CacheTable) Count(ctx context.Context) (int64, error) {
	var res int64
	q := "SELECT count(*) FROM " + t.name
	if err := t.be.queryRow(ctx, q).Scan(&res); err != nil {
		return 0, ReadError(t.name, err)
	}
	return res, nil
}

// MaxSeq returns the sequence number of the last flushed row, 0 for an
// empty table.
func (t *CacheTable) MaxSeq(ctx context.Context) (int64, error) {
	var res sql.NullInt64
	q := "SELECT max(seq) FROM " + t.name
	if err := t.be.queryRow(ctx, q).Scan(&res); err != nil {
		return 0, ReadError(t.name, err)
	}
	return res.Int64, nil
}

// Scan returns up to limit rows with afterSeq < seq <= toSeq in sequence
// order.
func (t *CacheTable) Scan(
	ctx context.Context,
	afterSeq, toSeq int64,
	limit int,
) ([]feature.DeferredReference, error) {
	q := fmt.Sprintf(`SELECT seq, source_id, source_gmlid, source_kind,
    attribute, target_gmlid, target_kind, detail
  FROM %s
  WHERE seq > $1 AND seq <= $2
  ORDER BY seq
  LIMIT $3`, t.name)

	rows, err := t.be.query(ctx, q, afterSeq, toSeq, limit)
	if err != nil {
		return nil, ReadError(t.name, err)
	}
	defer rows.Close()

	var res []feature.DeferredReference
	for rows.Next() {
		var ref feature.DeferredReference
		var sourceGMLID, sourceKind, attr, targetKind, detail sql.NullString
		err = rows.Scan(
			&ref.Seq, &ref.SourceID, &sourceGMLID, &sourceKind,
			&attr, &ref.TargetGMLID, &targetKind, &detail,
		)
		if err != nil {
			return nil, ReadError(t.name, err)
		}
		ref.Kind = t.kind
		ref.SourceGMLID = sourceGMLID.String
		ref.SourceKind = sourceKind.String
		ref.Attribute = attr.String
		ref.TargetKind = feature.TargetKind(targetKind.String)
		ref.Detail = detail.String
		res = append(res, ref)
	}
	if err = rows.Err(); err != nil {
		return nil, ReadError(t.name, err)
	}
	return res, nil
}

// DeleteUpTo removes rows with seq <= seq.
func (t *CacheTable) DeleteUpTo(ctx context.Context, seq int64) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE seq <= $1", t.name)
	if err := t.be.exec(ctx, q, seq); err != nil {
		return ReadError(t.name, err)
	}
	return nil
}
