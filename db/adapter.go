// Package db opens the relational store holding users, friend requests and
// the audit log.
package db

import (
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/config"
	dbmysql "github.com/kasuganosora/socialgraph/db/mysql"
	dbsqlite "github.com/kasuganosora/socialgraph/db/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

const defaultSlowQuery = 200 * time.Millisecond

// Open returns a *gorm.DB for the configured database mode. Slow queries and
// driver errors go to log; a nil log keeps GORM silent.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         queryLogger(log, cfg.SlowQuery),
		TranslateError: true,
	}
	switch cfg.Mode {
	case ModeSQLite, "":
		return dbsqlite.Open(cfg.SQLitePath, gcfg)
	case ModeMySQL:
		return dbmysql.Open(dbmysql.Options{
			DSN:     cfg.MySQLDSN,
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		}, gcfg)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}

func queryLogger(log *zap.Logger, slow time.Duration) gormlogger.Interface {
	if log == nil {
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	return gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
