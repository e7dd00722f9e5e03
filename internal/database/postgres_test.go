package database

import (
	"context"
	"errors"
	"testing"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_CapsIdleAtMaxConns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	Configure(db, &config.DatabaseConfig{MaxConns: 4, MaxIdle: 10})
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	require.NoError(t, Ping(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = Ping(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
