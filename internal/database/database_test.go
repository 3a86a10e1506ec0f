package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type item struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func TestConnect_SQLiteMemory(t *testing.T) {
	db, err := Connect(":memory:", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&item{}))

	require.NoError(t, db.Create(&item{ID: "a", Name: "first"}).Error)

	err = db.Create(&item{ID: "a", Name: "again"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}
