package alerter

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func OpenStore(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ProcessedTable{}, &OutcomeRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}
