// Package schema provides the table models of the city database that is
// exported by gncity. Models generate DDL for SQLite and are migrated with
// GORM AutoMigrate on PostgreSQL, so db tags and gorm columns always match.
package schema

import (
	"database/sql"
)

// DDLGenerator defines how Go models generate DDL.
type DDLGenerator interface {
	// TableDDL returns the CREATE TABLE statement for this model.
	TableDDL() string

	// IndexDDL returns CREATE INDEX statements for this model.
	// Returns empty slice if no indexes needed.
	IndexDDL() []string

	// TableName returns the table name for this model.
	TableName() string
}

// ObjectClass is a feature type of the city model.
type ObjectClass struct {
	// ID is the objectclass id, for example 26 for Building.
	ID int `db:"id" ddl:"INT PRIMARY KEY" gorm:"column:id;primaryKey;autoIncrement:false"`

	// ClassName is the feature type name.
	ClassName string `db:"classname" ddl:"VARCHAR(255) NOT NULL" gorm:"column:classname;size:255;not null"`

	// StorageTable is the table keeping type-specific attributes.
	StorageTable string `db:"storage_table" ddl:"VARCHAR(255)" gorm:"column:storage_table;size:255"`

	// IsTopLevel is true for features exported as units.
	IsTopLevel bool `db:"is_toplevel" ddl:"BOOLEAN NOT NULL DEFAULT FALSE" gorm:"column:is_toplevel;not null;default:false"`
}

// CityObject is one feature of any type.
type CityObject struct {
	// ID is the surrogate id.
	ID int64 `db:"id" ddl:"BIGINT PRIMARY KEY" gorm:"column:id;primaryKey;autoIncrement:false"`

	ObjectClassID int `db:"objectclass_id" ddl:"INT NOT NULL" gorm:"column:objectclass_id;not null"`

	// GMLID is the external id.
	GMLID sql.NullString `db:"gmlid" ddl:"VARCHAR(256)" gorm:"column:gmlid;size:256"`

	Name sql.NullString `db:"name" ddl:"VARCHAR(1000)" gorm:"column:name;size:1000"`

	// Envelope of all geometries of the feature.
	EnvelopeXMin sql.NullFloat64 `db:"envelope_xmin" ddl:"DOUBLE PRECISION" gorm:"column:envelope_xmin"`
	EnvelopeYMin sql.NullFloat64 `db:"envelope_ymin" ddl:"DOUBLE PRECISION" gorm:"column:envelope_ymin"`
	EnvelopeXMax sql.NullFloat64 `db:"envelope_xmax" ddl:"DOUBLE PRECISION" gorm:"column:envelope_xmax"`
	EnvelopeYMax sql.NullFloat64 `db:"envelope_ymax" ddl:"DOUBLE PRECISION" gorm:"column:envelope_ymax"`

	IsTopLevel bool `db:"is_toplevel" ddl:"BOOLEAN NOT NULL DEFAULT FALSE" gorm:"column:is_toplevel;not null;default:false"`
}

// SurfaceGeometry is a node of the geometry tree of a feature.
type SurfaceGeometry struct {
	ID int64 `db:"id" ddl:"BIGINT PRIMARY KEY" gorm:"column:id;primaryKey;autoIncrement:false"`

	GMLID sql.NullString `db:"gmlid" ddl:"VARCHAR(256)" gorm:"column:gmlid;size:256"`

	// ParentID is empty for root geometries.
	ParentID sql.NullInt64 `db:"parent_id" ddl:"BIGINT" gorm:"column:parent_id"`

	RootID sql.NullInt64 `db:"root_id" ddl:"BIGINT" gorm:"column:root_id"`

	CityObjectID int64 `db:"cityobject_id" ddl:"BIGINT NOT NULL" gorm:"column:cityobject_id;not null"`

	// Kind: solid, composite_surface, multi_surface, polygon, linear_ring
	// or implicit.
	Kind string `db:"kind" ddl:"VARCHAR(50) NOT NULL" gorm:"column:kind;size:50;not null"`

	// IsXlink is true when the node only points to a geometry of another
	// feature by XlinkGMLID.
	IsXlink bool `db:"is_xlink" ddl:"BOOLEAN NOT NULL DEFAULT FALSE" gorm:"column:is_xlink;not null;default:false"`

	XlinkGMLID sql.NullString `db:"xlink_gmlid" ddl:"VARCHAR(256)" gorm:"column:xlink_gmlid;size:256"`

	// Geometry is the coordinate text of the node.
	Geometry sql.NullString `db:"geometry" ddl:"TEXT" gorm:"column:geometry;type:text"`
}

// CityObjectReference is a property of a feature pointing to another
// feature or geometry by its external id.
type CityObjectReference struct {
	ID int64 `db:"id" ddl:"BIGINT PRIMARY KEY" gorm:"column:id;primaryKey;autoIncrement:false"`

	CityObjectID int64 `db:"cityobject_id" ddl:"BIGINT NOT NULL" gorm:"column:cityobject_id;not null"`

	// Kind is one of the deferred reference kinds.
	Kind string `db:"kind" ddl:"VARCHAR(50) NOT NULL" gorm:"column:kind;size:50;not null"`

	Attribute string `db:"attribute" ddl:"VARCHAR(255) NOT NULL" gorm:"column:attribute;size:255;not null"`

	TargetGMLID string `db:"target_gmlid" ddl:"VARCHAR(256) NOT NULL" gorm:"column:target_gmlid;size:256;not null"`

	// TargetKind is "object" or "geometry", empty means the default of the
	// reference kind.
	TargetKind sql.NullString `db:"target_kind" ddl:"VARCHAR(20)" gorm:"column:target_kind;size:20"`

	// Detail is the kind-specific payload.
	Detail sql.NullString `db:"detail" ddl:"TEXT" gorm:"column:detail;type:text"`
}
