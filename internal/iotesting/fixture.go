package iotesting

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/internal/ioschema"
	"github.com/gnames/gncity/pkg/config"
)

// Object is a cityobject row of a fixture.
type Object struct {
	ID       int64
	ClassID  int
	GMLID    string
	Name     string
	Envelope []float64
	TopLevel bool
}

// Geometry is a surface_geometry row of a fixture.
type Geometry struct {
	ID           int64
	CityObjectID int64
	GMLID        string
	ParentID     int64
	Kind         string
	XlinkGMLID   string
	Data         string
}

// Reference is a cityobject_reference row of a fixture.
type Reference struct {
	ID           int64
	CityObjectID int64
	Kind         string
	Attribute    string
	TargetGMLID  string
	TargetKind   string
	Detail       string
}

// Fixture is the content of a test city database.
type Fixture struct {
	Objects    []Object
	Geometries []Geometry
	References []Reference
}

// NewCityDB creates a SQLite city database in t.TempDir(), fills it with
// the fixture and returns its path.
func NewCityDB(t *testing.T, fx Fixture) string {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "city.db")
	op := iodb.NewSQLiteOperator(1)
	cfg := config.DatabaseConfig{Driver: iodb.DriverSQLite, Path: path}
	if err := op.Connect(ctx, &cfg); err != nil {
		t.Fatalf("Failed to open city database: %v", err)
	}
	defer op.Close()

	if err := ioschema.NewManager(op).Create(ctx); err != nil {
		t.Fatalf("Failed to create city schema: %v", err)
	}
	if err := fx.Load(ctx, op.DB(), op.Driver()); err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}
	return path
}

// Load inserts the fixture rows in one transaction.
func (fx Fixture) Load(ctx context.Context, db *sql.DB, driver string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qObj := iodb.Rebind(driver, `INSERT INTO cityobject
  (id, objectclass_id, gmlid, name, envelope_xmin, envelope_ymin,
   envelope_xmax, envelope_ymax, is_toplevel)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	for _, v := range fx.Objects {
		env := make([]any, 4)
		if len(v.Envelope) == 4 {
			for i := range env {
				env[i] = v.Envelope[i]
			}
		}
		_, err = tx.ExecContext(ctx, qObj,
			v.ID, v.ClassID, nullString(v.GMLID), nullString(v.Name),
			env[0], env[1], env[2], env[3], v.TopLevel,
		)
		if err != nil {
			return fmt.Errorf("cityobject %d: %w", v.ID, err)
		}
	}

	qGeom := iodb.Rebind(driver, `INSERT INTO surface_geometry
  (id, gmlid, parent_id, root_id, cityobject_id, kind, is_xlink,
   xlink_gmlid, geometry)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	for _, v := range fx.Geometries {
		var parent any
		if v.ParentID > 0 {
			parent = v.ParentID
		}
		_, err = tx.ExecContext(ctx, qGeom,
			v.ID, nullString(v.GMLID), parent, parent, v.CityObjectID,
			v.Kind, v.XlinkGMLID != "", nullString(v.XlinkGMLID),
			nullString(v.Data),
		)
		if err != nil {
			return fmt.Errorf("surface_geometry %d: %w", v.ID, err)
		}
	}

	qRef := iodb.Rebind(driver, `INSERT INTO cityobject_reference
  (id, cityobject_id, kind, attribute, target_gmlid, target_kind, detail)
  VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	for _, v := range fx.References {
		_, err = tx.ExecContext(ctx, qRef,
			v.ID, v.CityObjectID, v.Kind, v.Attribute, v.TargetGMLID,
			nullString(v.TargetKind), nullString(v.Detail),
		)
		if err != nil {
			return fmt.Errorf("cityobject_reference %d: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Buildings returns n top-level buildings with one polygon each. Their
// envelopes are unit squares laid out on a grid of the given width,
// building i has its centre at (i%width+0.5, i/width+0.5).
func Buildings(n, width int) Fixture {
	var res Fixture
	for i := range n {
		id := int64(i + 1)
		x := float64(i % width)
		y := float64(i / width)
		res.Objects = append(res.Objects, Object{
			ID:       id,
			ClassID:  26,
			GMLID:    fmt.Sprintf("BLDG_%d", id),
			Name:     fmt.Sprintf("Building %d", id),
			Envelope: []float64{x, y, x + 1, y + 1},
			TopLevel: true,
		})
		res.Geometries = append(res.Geometries, Geometry{
			ID:           id,
			CityObjectID: id,
			GMLID:        fmt.Sprintf("POLY_%d", id),
			Kind:         "polygon",
			Data:         fmt.Sprintf("%g %g %g %g", x, y, x+1, y+1),
		})
	}
	return res
}
