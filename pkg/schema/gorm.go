package schema

import (
	"gorm.io/gorm"
)

// AllModels returns all schema models for GORM AutoMigrate.
func AllModels() []any {
	return []any{
		&ObjectClass{},
		&CityObject{},
		&SurfaceGeometry{},
		&CityObjectReference{},
	}
}

// Migrate runs GORM AutoMigrate to create or update schema and adds the
// indexes AutoMigrate does not know about.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return err
	}
	for _, v := range DDLGenerators() {
		for _, idx := range v.IndexDDL() {
			if err := db.Exec(idx).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
