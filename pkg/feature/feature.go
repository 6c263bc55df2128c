// Package feature contains the data exchanged by components of the export
// pipeline: split units, materialised features, deferred references and
// the links that resolve them.
package feature

// TargetKind tells which id cache knows the target of a reference.
type TargetKind string

const (
	TargetObject   TargetKind = "object"
	TargetGeometry TargetKind = "geometry"
)

// SplitUnit is one top-level feature selected for export. It is created by
// the splitter and consumed by exactly one export worker.
type SplitUnit struct {
	// ID is the surrogate id of the cityobject row.
	ID int64

	// ObjectClassID is the feature type.
	ObjectClassID int

	// GMLID is the external id, empty when the row has none.
	GMLID string
}

// Geometry is one surface geometry of a feature.
type Geometry struct {
	ID       int64  `json:"-"`
	GMLID    string `json:"id"`
	ParentID int64  `json:"-"`
	Kind     string `json:"kind"`

	// Href points to a geometry already written with another feature. Data
	// is empty in that case.
	Href string `json:"href,omitempty"`
	Data string `json:"data,omitempty"`
}

// Property is a reference resolved while the feature was materialised.
type Property struct {
	Attribute string  `json:"attribute"`
	Kind      RefKind `json:"kind"`
	Href      string  `json:"href"`
	Detail    string  `json:"detail,omitempty"`
}

// Feature is a fully materialised top-level feature.
type Feature struct {
	ID            int64      `json:"-"`
	GMLID         string     `json:"id"`
	ObjectClassID int        `json:"objectclassId"`
	Type          string     `json:"featureType"`
	Name          string     `json:"name,omitempty"`
	Envelope      []float64  `json:"envelope,omitempty"`
	Geometries    []Geometry `json:"geometries,omitempty"`
	Properties    []Property `json:"properties,omitempty"`

	// Deferred references are not written with the feature, they go to
	// the xlink resolver.
	Deferred []DeferredReference `json:"-"`
}

// Link completes a deferred reference in the output.
type Link struct {
	SourceID    int64      `json:"-"`
	SourceGMLID string     `json:"source"`
	Kind        RefKind    `json:"kind"`
	Attribute   string     `json:"attribute"`
	TargetGMLID string     `json:"target"`
	TargetKind  TargetKind `json:"targetKind"`
	Detail      string     `json:"detail,omitempty"`

	// Resolved is false for dangling references whose target was never
	// exported.
	Resolved bool `json:"resolved"`
}

// NewLink creates a link from a deferred reference.
func NewLink(ref DeferredReference, resolved bool) Link {
	return Link{
		SourceID:    ref.SourceID,
		SourceGMLID: ref.SourceGMLID,
		Kind:        ref.Kind,
		Attribute:   ref.Attribute,
		TargetGMLID: ref.TargetGMLID,
		TargetKind:  ref.TargetKind,
		Detail:      ref.Detail,
		Resolved:    resolved,
	}
}
