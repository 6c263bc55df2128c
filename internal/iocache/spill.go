package iocache

import (
	"context"
	"fmt"

	"github.com/gnames/gncity/pkg/idcache"
)

// idTable keeps evicted entries of one id cache shard.
type idTable struct {
	name string
	be   backend
}

var idCols = []string{"gmlid", "internal_id", "resolved"}

func (t *idTable) upsert(ctx context.Context, entries []idcache.Entry) error {
	size := maxParams / len(idCols)
	for _, c := range chunks(len(entries), size) {
		part := entries[c[0]:c[1]]
		q := insertSQL(t.name, idCols, len(part)) +
			" ON CONFLICT (gmlid) DO UPDATE SET" +
			" internal_id = excluded.internal_id," +
			" resolved = excluded.resolved"

		args := make([]any, 0, len(part)*len(idCols))
		for _, e := range part {
			args = append(args, e.Key, e.InternalID, e.Resolved)
		}
		if err := t.be.exec(ctx, q, args...); err != nil {
			return InsertError(t.name, len(part), err)
		}
	}
	return nil
}

func (t *idTable) get(
	ctx context.Context,
	keys []string,
) (map[string]idcache.Entry, error) {
	res := make(map[string]idcache.Entry, len(keys))
	for _, c := range chunks(len(keys), maxParams) {
		part := keys[c[0]:c[1]]
		q := fmt.Sprintf(
			"SELECT gmlid, internal_id, resolved FROM %s WHERE gmlid IN (%s)",
			t.name, placeholders(1, len(part)),
		)

		args := make([]any, len(part))
		for i := range part {
			args[i] = part[i]
		}

		rows, err := t.be.query(ctx, q, args...)
		if err != nil {
			return nil, ReadError(t.name, err)
		}
		for rows.Next() {
			var e idcache.Entry
			if err = rows.Scan(&e.Key, &e.InternalID, &e.Resolved); err != nil {
				rows.Close()
				return nil, ReadError(t.name, err)
			}
			res[e.Key] = e
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, ReadError(t.name, err)
		}
	}
	return res, nil
}

// Spill keeps overflow of an id cache in cache tables, one table per
// shard. It implements idcache.Spill.
type Spill struct {
	mgr  *Manager
	name string
}

// NewSpill creates a spill for the id cache with the given name, for
// example "object". Tables are created on the first eviction of a shard.
func (m *Manager) NewSpill(name string) *Spill {
	return &Spill{mgr: m, name: name}
}

// PutBatch stores evicted entries of a shard.
func (s *Spill) PutBatch(
	ctx context.Context,
	shard int,
	entries []idcache.Entry,
) error {
	if len(entries) == 0 {
		return nil
	}
	t, err := s.mgr.idTable(ctx, s.tableName(shard))
	if err != nil {
		return err
	}
	return t.upsert(ctx, entries)
}

// GetBatch returns stored entries of a shard by their keys.
func (s *Spill) GetBatch(
	ctx context.Context,
	shard int,
	keys []string,
) (map[string]idcache.Entry, error) {
	t, err := s.mgr.idTable(ctx, s.tableName(shard))
	if err != nil {
		return nil, err
	}
	return t.get(ctx, keys)
}

func (s *Spill) tableName(shard int) string {
	return fmt.Sprintf("gmlid_%s_p%d", s.name, shard)
}
