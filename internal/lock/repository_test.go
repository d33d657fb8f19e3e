package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minutepad/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

func TestTryAcquireGranted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	cutoff := time.Now().Add(-30 * time.Second)

	mock.ExpectExec("INSERT INTO locks").
		WithArgs("para-1", "doc-1", "alice", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))

	granted, err := repo.TryAcquire(context.Background(), "para-1", "doc-1", "alice", cutoff)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquireDeniedWhenHeldByOther(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	cutoff := time.Now().Add(-30 * time.Second)

	// The conditional upsert touches zero rows when another participant
	// holds a live lease.
	mock.ExpectExec("INSERT INTO locks").
		WithArgs("para-1", "doc-1", "bob", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	granted, err := repo.TryAcquire(context.Background(), "para-1", "doc-1", "bob", cutoff)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHolderOfFreeUnit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	cutoff := time.Now().Add(-30 * time.Second)

	mock.ExpectQuery("SELECT holder_id FROM locks").
		WithArgs("para-1", cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"holder_id"}))

	holder, err := repo.Holder(context.Background(), "para-1", cutoff)
	require.NoError(t, err)
	assert.Empty(t, holder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	// Releasing a lock we do not hold deletes nothing and is not an error.
	mock.ExpectExec("DELETE FROM locks WHERE unit_id").
		WithArgs("para-1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM locks WHERE unit_id").
		WithArgs("para-1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Release(context.Background(), "para-1", "bob"))
	require.NoError(t, repo.Release(context.Background(), "para-1", "bob"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	cutoff := time.Now().Add(-30 * time.Second)

	mock.ExpectExec("DELETE FROM locks WHERE refreshed_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.PurgeExpired(context.Background(), cutoff))
	assert.NoError(t, mock.ExpectationsWereMet())
}
