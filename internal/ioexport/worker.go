package ioexport

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/pkg/counter"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/mapping"
	"github.com/gnames/gncity/pkg/workerpool"
	"github.com/gnames/gnuuid"
)

// exportWorker materialises features. Every worker keeps one database
// connection for its whole life.
type exportWorker struct {
	r    *tileRun
	conn *sql.Conn
}

func (r *tileRun) newExportWorker(
	ctx context.Context,
) (workerpool.Worker[feature.SplitUnit], error) {
	conn, err := r.op.DB().Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &exportWorker{r: r, conn: conn}, nil
}

func (w *exportWorker) Close() error {
	return w.conn.Close()
}

// Work exports one feature. The feature is written before its ids are
// marked as resolved, so a reference resolved inline always points to a
// document that is already in the output.
func (w *exportWorker) Work(ctx context.Context, u feature.SplitUnit) error {
	r := w.r
	// nothing new starts after a fatal event
	if r.bus.IsInterrupted() {
		r.stats.abandoned.Add(1)
		return nil
	}

	f, created, err := w.materialize(ctx, u)
	if err != nil {
		return err
	}

	if err = r.writer.WriteFeature(f); err != nil {
		return err
	}

	if err = r.objects.Resolve(ctx, f.GMLID, f.ID); err != nil {
		r.stagingFailed("object cache", err)
	}
	delta := counter.NewDelta()
	delta.Objects[f.ObjectClassID]++
	for _, g := range created {
		if err = r.geometries.Resolve(ctx, g.GMLID, g.ID); err != nil {
			r.stagingFailed("geometry cache", err)
		}
		delta.Geometries[g.Kind]++
	}
	r.exported.add(f.ID)
	r.stats.exported.Add(1)
	r.bus.Count(delta)
	if r.bar != nil {
		r.bar.Increment()
	}

	for _, ref := range f.Deferred {
		r.deferReference(ctx, ref)
	}
	return nil
}

// materialize reads the feature with its geometries and references. It
// returns geometries first emitted by this feature.
func (w *exportWorker) materialize(
	ctx context.Context,
	u feature.SplitUnit,
) (feature.Feature, []feature.Geometry, error) {
	r := w.r
	driver := r.op.Driver()

	f := feature.Feature{ID: u.ID, ObjectClassID: u.ObjectClassID}
	var gmlID, name sql.NullString
	var x0, y0, x1, y1 sql.NullFloat64
	q := iodb.Rebind(driver, `SELECT objectclass_id, gmlid, name,
    envelope_xmin, envelope_ymin, envelope_xmax, envelope_ymax
  FROM cityobject WHERE id = $1`)
	err := w.conn.QueryRowContext(ctx, q, u.ID).Scan(
		&f.ObjectClassID, &gmlID, &name, &x0, &y0, &x1, &y1,
	)
	if err != nil {
		return f, nil, fmt.Errorf("cityobject %d: %w", u.ID, err)
	}

	f.GMLID = gmlID.String
	if f.GMLID == "" {
		f.GMLID = generatedID("cityobject", u.ID)
	}
	f.Name = name.String
	f.Type = mapping.NameOf(f.ObjectClassID)
	if x0.Valid && y0.Valid && x1.Valid && y1.Valid {
		f.Envelope = []float64{x0.Float64, y0.Float64, x1.Float64, y1.Float64}
	}

	created, err := w.geometries(ctx, &f)
	if err != nil {
		return f, nil, err
	}
	if err = w.references(ctx, &f); err != nil {
		return f, nil, err
	}
	return f, created, nil
}

func (w *exportWorker) geometries(
	ctx context.Context,
	f *feature.Feature,
) ([]feature.Geometry, error) {
	r := w.r
	q := iodb.Rebind(r.op.Driver(), `SELECT id, gmlid, parent_id, kind,
    is_xlink, xlink_gmlid, geometry
  FROM surface_geometry
  WHERE cityobject_id = $1
  ORDER BY id`)

	rows, err := w.conn.QueryContext(ctx, q, f.ID)
	if err != nil {
		return nil, fmt.Errorf("geometries of %d: %w", f.ID, err)
	}
	defer rows.Close()

	var all []feature.Geometry
	var xlinks []feature.Geometry
	for rows.Next() {
		var g feature.Geometry
		var gmlID, xlink, data sql.NullString
		var parent sql.NullInt64
		var isXlink bool
		err = rows.Scan(&g.ID, &gmlID, &parent, &g.Kind, &isXlink, &xlink, &data)
		if err != nil {
			return nil, fmt.Errorf("geometries of %d: %w", f.ID, err)
		}
		g.GMLID = gmlID.String
		g.ParentID = parent.Int64
		g.Data = data.String

		if isXlink {
			g.Href = xlink.String
			xlinks = append(xlinks, g)
			continue
		}
		if g.GMLID == "" {
			g.GMLID = generatedID("geometry", g.ID)
		}
		all = append(all, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("geometries of %d: %w", f.ID, err)
	}

	var created []feature.Geometry
	for _, g := range all {
		ent, isNew, err := r.geometries.PutIfAbsent(ctx, g.GMLID, g.ID)
		if err != nil {
			r.stagingFailed("geometry cache", err)
			isNew = true
		}
		// another feature already emitted a geometry with this id
		if !isNew && ent.InternalID != g.ID {
			f.Geometries = append(f.Geometries, feature.Geometry{
				GMLID: g.GMLID,
				Kind:  g.Kind,
				Href:  "#" + g.GMLID,
			})
			continue
		}
		f.Geometries = append(f.Geometries, g)
		created = append(created, g)
	}

	for _, g := range xlinks {
		ref := feature.DeferredReference{
			SourceID:    f.ID,
			SourceGMLID: f.GMLID,
			SourceKind:  f.Type,
			Kind:        feature.RefSurfaceGeometry,
			Attribute:   "geometry",
			TargetGMLID: g.Href,
			TargetKind:  feature.TargetGeometry,
			Detail:      g.Kind,
		}
		ok, err := w.resolveInline(ctx, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			f.Geometries = append(f.Geometries, feature.Geometry{
				Kind: g.Kind,
				Href: "#" + g.Href,
			})
			continue
		}
		f.Deferred = append(f.Deferred, ref)
	}
	return created, nil
}

func (w *exportWorker) references(ctx context.Context, f *feature.Feature) error {
	r := w.r
	q := iodb.Rebind(r.op.Driver(), `SELECT kind, attribute, target_gmlid,
    target_kind, detail
  FROM cityobject_reference
  WHERE cityobject_id = $1
  ORDER BY id`)

	rows, err := w.conn.QueryContext(ctx, q, f.ID)
	if err != nil {
		return fmt.Errorf("references of %d: %w", f.ID, err)
	}
	defer rows.Close()

	var refs []feature.DeferredReference
	for rows.Next() {
		var kind string
		var targetKind, detail sql.NullString
		ref := feature.DeferredReference{
			SourceID:    f.ID,
			SourceGMLID: f.GMLID,
			SourceKind:  f.Type,
		}
		err = rows.Scan(&kind, &ref.Attribute, &ref.TargetGMLID, &targetKind, &detail)
		if err != nil {
			return fmt.Errorf("references of %d: %w", f.ID, err)
		}
		if ref.Kind, err = feature.NewRefKind(kind); err != nil {
			return fmt.Errorf("references of %d: %w", f.ID, err)
		}
		ref.TargetKind = feature.TargetKind(targetKind.String)
		if ref.TargetKind == "" {
			ref.TargetKind = mapping.TargetKindOf(ref.Kind)
		}
		ref.Detail = detail.String
		refs = append(refs, ref)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("references of %d: %w", f.ID, err)
	}

	for _, ref := range refs {
		ok, err := w.resolveInline(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			f.Deferred = append(f.Deferred, ref)
			continue
		}
		f.Properties = append(f.Properties, feature.Property{
			Attribute: ref.Attribute,
			Kind:      ref.Kind,
			Href:      "#" + ref.TargetGMLID,
			Detail:    ref.Detail,
		})
	}
	return nil
}

// resolveInline applies the reference policy to the cached state of the
// target.
func (w *exportWorker) resolveInline(
	ctx context.Context,
	ref feature.DeferredReference,
) (bool, error) {
	r := w.r
	if r.policy == feature.PolicyDeferred {
		return false, nil
	}
	ent, ok, err := r.cacheOf(ref.TargetKind).Get(ctx, ref.TargetGMLID)
	if err != nil {
		r.stagingFailed("id cache", err)
		return false, nil
	}
	return r.policy.ResolveInline(ok, ent.Resolved), nil
}

// generatedID is a stable external id of a row that has none.
func generatedID(table string, id int64) string {
	return "UUID_" + gnuuid.New(fmt.Sprintf("%s:%d", table, id)).String()
}
