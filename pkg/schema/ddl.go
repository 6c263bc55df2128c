package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// generateDDL creates a CREATE TABLE statement from struct tags.
func generateDDL(model any, tableName string) string {
	v := reflect.ValueOf(model)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	var columns []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		dbTag := field.Tag.Get("db")
		ddlTag := field.Tag.Get("ddl")

		if dbTag != "" && ddlTag != "" {
			columns = append(columns, fmt.Sprintf("    %s %s", dbTag, ddlTag))
		}
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);",
		tableName,
		strings.Join(columns, ",\n"))

	return ddl
}

// ObjectClass DDL methods
func (oc ObjectClass) TableDDL() string {
	return generateDDL(oc, oc.TableName())
}

func (oc ObjectClass) IndexDDL() []string {
	return []string{}
}

func (oc ObjectClass) TableName() string {
	return "objectclass"
}

// CityObject DDL methods
func (co CityObject) TableDDL() string {
	return generateDDL(co, co.TableName())
}

func (co CityObject) IndexDDL() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_cityobject_objectclass ON cityobject(objectclass_id);",
		"CREATE INDEX IF NOT EXISTS idx_cityobject_gmlid ON cityobject(gmlid);",
		"CREATE INDEX IF NOT EXISTS idx_cityobject_toplevel ON cityobject(is_toplevel, id);",
	}
}

func (co CityObject) TableName() string {
	return "cityobject"
}

// SurfaceGeometry DDL methods
func (sg SurfaceGeometry) TableDDL() string {
	return generateDDL(sg, sg.TableName())
}

func (sg SurfaceGeometry) IndexDDL() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_surface_geometry_cityobject ON surface_geometry(cityobject_id);",
		"CREATE INDEX IF NOT EXISTS idx_surface_geometry_gmlid ON surface_geometry(gmlid);",
	}
}

func (sg SurfaceGeometry) TableName() string {
	return "surface_geometry"
}

// CityObjectReference DDL methods
func (cr CityObjectReference) TableDDL() string {
	return generateDDL(cr, cr.TableName())
}

func (cr CityObjectReference) IndexDDL() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_cityobject_reference_cityobject ON cityobject_reference(cityobject_id);",
	}
}

func (cr CityObjectReference) TableName() string {
	return "cityobject_reference"
}

// DDLGenerators returns all models in creation order.
func DDLGenerators() []DDLGenerator {
	return []DDLGenerator{
		ObjectClass{},
		CityObject{},
		SurfaceGeometry{},
		CityObjectReference{},
	}
}

// DDL returns CREATE TABLE and CREATE INDEX statements of the whole
// schema.
func DDL() []string {
	var res []string
	for _, v := range DDLGenerators() {
		res = append(res, v.TableDDL())
		res = append(res, v.IndexDDL()...)
	}
	return res
}
