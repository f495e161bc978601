package db

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/cabletrack/internal/migration"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// NewTest opens an isolated in-memory sqlite database with the schema
// applied. The pool is capped at one connection, so code under test must
// run every statement of a transaction on the transaction handle.
func NewTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	statements, err := migration.UpStatements("sqlite")
	if err != nil {
		return nil, err
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return conn, nil
}
