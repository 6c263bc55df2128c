// Package mapping is the read-only schema mapping of the city database.
// It translates feature types to objectclass ids and storage tables, and
// reference kinds to the kind of their targets.
package mapping

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gnames/gncity/pkg/feature"
)

// ObjectClass describes one feature type.
type ObjectClass struct {
	ID       int
	Name     string
	Table    string
	TopLevel bool
}

var classes = []ObjectClass{
	{ID: 4, Name: "LandUse", Table: "land_use", TopLevel: true},
	{ID: 5, Name: "GenericCityObject", Table: "generic_cityobject", TopLevel: true},
	{ID: 7, Name: "SolitaryVegetationObject", Table: "solitary_vegetat_object", TopLevel: true},
	{ID: 8, Name: "PlantCover", Table: "plant_cover", TopLevel: true},
	{ID: 9, Name: "WaterBody", Table: "waterbody", TopLevel: true},
	{ID: 14, Name: "ReliefFeature", Table: "relief_feature", TopLevel: true},
	{ID: 21, Name: "CityFurniture", Table: "city_furniture", TopLevel: true},
	{ID: 23, Name: "CityObjectGroup", Table: "cityobjectgroup", TopLevel: true},
	{ID: 25, Name: "BuildingPart", Table: "building", TopLevel: false},
	{ID: 26, Name: "Building", Table: "building", TopLevel: true},
	{ID: 42, Name: "TransportationComplex", Table: "transportation_complex", TopLevel: true},
	{ID: 43, Name: "Track", Table: "transportation_complex", TopLevel: true},
	{ID: 44, Name: "Road", Table: "transportation_complex", TopLevel: true},
	{ID: 45, Name: "Railway", Table: "transportation_complex", TopLevel: true},
	{ID: 46, Name: "Square", Table: "transportation_complex", TopLevel: true},
	{ID: 64, Name: "Bridge", Table: "bridge", TopLevel: true},
	{ID: 65, Name: "BridgePart", Table: "bridge", TopLevel: false},
	{ID: 84, Name: "Tunnel", Table: "tunnel", TopLevel: true},
	{ID: 85, Name: "TunnelPart", Table: "tunnel", TopLevel: false},
}

// ObjectClasses returns all known feature types ordered by id.
func ObjectClasses() []ObjectClass {
	return slices.Clone(classes)
}

// ByID returns a feature type by its objectclass id.
func ByID(id int) (ObjectClass, bool) {
	for _, v := range classes {
		if v.ID == id {
			return v, true
		}
	}
	return ObjectClass{}, false
}

// ByName returns a feature type by its name, ignoring case.
func ByName(name string) (ObjectClass, bool) {
	name = strings.TrimSpace(name)
	for _, v := range classes {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return ObjectClass{}, false
}

// NameOf returns the name of a feature type. Unknown ids are named by the
// id itself.
func NameOf(id int) string {
	if oc, ok := ByID(id); ok {
		return oc.Name
	}
	return "objectclass_" + strconv.Itoa(id)
}

// TopLevelIDs converts feature type names into objectclass ids of
// top-level feature types. Empty names mean all top-level types.
func TopLevelIDs(names []string) ([]int, error) {
	var res []int
	if len(names) == 0 {
		for _, v := range classes {
			if v.TopLevel {
				res = append(res, v.ID)
			}
		}
		return res, nil
	}

	for _, name := range names {
		oc, ok := ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature type %q", name)
		}
		if !oc.TopLevel {
			return nil, fmt.Errorf("feature type %q is not a top-level feature", oc.Name)
		}
		if !slices.Contains(res, oc.ID) {
			res = append(res, oc.ID)
		}
	}
	slices.Sort(res)
	return res, nil
}

// TargetKindOf returns the default target kind of a reference kind. It is
// used when a stored reference does not state its target kind.
func TargetKindOf(k feature.RefKind) feature.TargetKind {
	switch k {
	case feature.RefTexCoordList, feature.RefTextureParam,
		feature.RefLinearRing, feature.RefSurfaceGeometry:
		return feature.TargetGeometry
	default:
		return feature.TargetObject
	}
}
