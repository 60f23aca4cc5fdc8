package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/socialgraph/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: path}, zap.NewNop())
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
	assert.FileExists(t, path)
}

func TestOpen_DefaultModeIsSQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{SQLitePath: "file:adapter_default?mode=memory&cache=shared"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "oracle"}, nil)
	assert.ErrorContains(t, err, "oracle")
}

type pair struct {
	ID int64
	A  int64 `gorm:"uniqueIndex:idx_pair,priority:1"`
	B  int64 `gorm:"uniqueIndex:idx_pair,priority:2"`
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(config.DatabaseConfig{SQLitePath: "file:adapter_unique?mode=memory&cache=shared"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pair{}))

	require.NoError(t, db.Create(&pair{A: 1, B: 2}).Error)
	require.NoError(t, db.Create(&pair{A: 2, B: 1}).Error)
	err = db.Create(&pair{A: 1, B: 2}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
}
