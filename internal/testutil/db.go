// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewSQLiteDB returns a fresh in-memory database with the full schema applied.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(&config.Config{
		Env:        "test",
		DBDriver:   "sqlite",
		SQLitePath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user whose email and handle derive from name.
func CreateUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	handle := name
	user := &models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s@example.com", name),
		Handle:       &handle,
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
