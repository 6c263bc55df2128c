package feature

import (
	"fmt"
	"strings"
)

// RefKind is the shape of a deferred reference. Every kind is staged in a
// cache table of its own.
type RefKind string

const (
	RefBasic              RefKind = "basic"
	RefTexCoordList       RefKind = "texcoordlist"
	RefTextureParam       RefKind = "textureparam"
	RefGroupMember        RefKind = "groupmember"
	RefLibraryObject      RefKind = "libraryobject"
	RefDeprecatedMaterial RefKind = "deprecatedmaterial"
	RefLinearRing         RefKind = "linearring"
	RefSurfaceGeometry    RefKind = "surfacegeometry"
)

// RefKinds lists all kinds of deferred references.
var RefKinds = []RefKind{
	RefBasic,
	RefTexCoordList,
	RefTextureParam,
	RefGroupMember,
	RefLibraryObject,
	RefDeprecatedMaterial,
	RefLinearRing,
	RefSurfaceGeometry,
}

// NewRefKind converts a stored kind name into a RefKind.
func NewRefKind(s string) (RefKind, error) {
	k := RefKind(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range RefKinds {
		if k == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown reference kind %q", s)
}

// DeferredReference is an edge from a source feature to a target that
// could not be resolved when the source was materialised. It is staged at
// most once per occurrence and never changes after that.
type DeferredReference struct {
	// Seq is the position of the record in its cache table. It is zero
	// before the record is staged.
	Seq int64

	SourceID    int64
	SourceGMLID string

	// SourceKind is the feature type of the source.
	SourceKind string

	Kind        RefKind
	Attribute   string
	TargetGMLID string
	TargetKind  TargetKind

	// Detail is the kind-specific payload: texture coordinates, a texture
	// parameter uri, a group role, a library uri, a material or a ring
	// number.
	Detail string
}

// RefPolicy decides whether an export worker resolves a reference on the
// spot or hands it to the xlink resolver.
type RefPolicy string

const (
	// PolicyInline resolves references whose target is already cached and
	// resolved, and defers the rest.
	PolicyInline RefPolicy = "inline"

	// PolicyDeferred hands every reference to the resolver.
	PolicyDeferred RefPolicy = "deferred"
)

// NewRefPolicy converts a configuration value into a RefPolicy.
// Unknown values mean PolicyInline.
func NewRefPolicy(s string) RefPolicy {
	if RefPolicy(strings.ToLower(s)) == PolicyDeferred {
		return PolicyDeferred
	}
	return PolicyInline
}

// ResolveInline reports whether a reference with the given cache state is
// resolved by the export worker itself.
func (p RefPolicy) ResolveInline(cached, resolved bool) bool {
	return p == PolicyInline && cached && resolved
}
