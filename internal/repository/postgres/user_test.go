package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRepositories(t *testing.T) {
	db := &Connection{}

	assert.Equal(t, db, NewUserRepository(db).db)
	assert.Equal(t, db, NewClientRepository(db).db)
	assert.Equal(t, db, NewDirectoryRepository(db).db)
	assert.Equal(t, db, NewScopeRepository(db).db)
	assert.Equal(t, db, NewConsentRepository(db).db)
	assert.Equal(t, db, NewCodeRepository(db).db)
	assert.Equal(t, db, NewRefreshTokenRepository(db).db)
	assert.Equal(t, db, NewRevocationRepository(db).db)
	assert.Equal(t, db, NewLoginAttemptRepository(db).db)
}

func TestConnection_PingWithoutPool(t *testing.T) {
	db := &Connection{}

	assert.Error(t, db.Ping(t.Context()))
	assert.NoError(t, db.Close())
}
