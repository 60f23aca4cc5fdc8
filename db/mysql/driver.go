package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Options configures the MySQL connection pool. Zero values take the
// defaults below.
type Options struct {
	DSN     string
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxOpen <= 0 {
		o.MaxOpen = 50
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = 10
	}
	if o.MaxLife <= 0 {
		o.MaxLife = time.Hour
	}
}

// Open connects to MySQL and pings it. The DSN must set parseTime=True so
// friend request timestamps scan into time.Time.
func Open(opts Options, gcfg *gorm.Config) (*gorm.DB, error) {
	if !strings.Contains(strings.ToLower(opts.DSN), "parsetime=true") {
		return nil, fmt.Errorf("mysql: dsn must include parseTime=True")
	}
	opts.applyDefaults()

	db, err := gorm.Open(mysql.Open(opts.DSN), gcfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpen)
	sqlDB.SetMaxIdleConns(opts.MaxIdle)
	sqlDB.SetConnMaxLifetime(opts.MaxLife)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return db, nil
}
