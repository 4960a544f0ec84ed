package postgres

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestMigrateFailsOnClosedConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = Migrate(db)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateDownFailsOnClosedConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = MigrateDown(db)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
