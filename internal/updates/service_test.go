package updates

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docrepo "minutepad/internal/document/repository"
	"minutepad/internal/lock"
	"minutepad/internal/presence"
	"minutepad/internal/queue"
	"minutepad/internal/version"
	"minutepad/pkg/fingerprint"
	"minutepad/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

type allowAll struct{}

func (allowAll) CanAccess(ctx context.Context, docID, participantID string) error    { return nil }
func (allowAll) CanArbitrate(ctx context.Context, docID, participantID string) error { return nil }
func (allowAll) IsInitiator(ctx context.Context, docID, participantID string) error  { return nil }

func newUpdatesService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	versions := version.NewRepository(db)
	docs := docrepo.NewDocumentRepository(db, versions)
	locks := lock.NewService(lock.NewRepository(db), docs, allowAll{}, 30*time.Second)
	tracker := presence.NewTracker(rdb, 30*time.Second)
	return NewService(docs, locks, tracker, queue.NewRepository(db, versions), allowAll{}), mock
}

func expectUnitPoll(mock sqlmock.Sqlmock, unitID, content, holder string) {
	mock.ExpectQuery("SELECT id, document_id, ord, content").
		WithArgs(unitID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "ord", "content", "last_editor", "last_edited_at"}).
			AddRow(unitID, "doc-1", 1024.0, content, "alice", time.Now()))
	holderRows := sqlmock.NewRows([]string{"holder_id"})
	if holder != "" {
		holderRows.AddRow(holder)
	}
	mock.ExpectQuery("SELECT holder_id FROM locks").
		WithArgs(unitID, sqlmock.AnyArg()).
		WillReturnRows(holderRows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(unitID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
}

// A poll whose fingerprint still matches reports Unchanged with no
// content, so applying the same response twice is a no-op by construction.
func TestForUnitUnchangedOmitsContent(t *testing.T) {
	svc, mock := newUpdatesService(t)
	ctx := context.Background()

	fp := fingerprint.Of("Hello world")

	expectUnitPoll(mock, "para-1", "Hello world", "")
	upd, err := svc.ForUnit(ctx, "bob", "para-1", "")
	require.NoError(t, err)
	assert.False(t, upd.Unchanged)
	assert.Equal(t, "Hello world", upd.Content)
	assert.Equal(t, fp, upd.Fingerprint)

	// Second poll with the fingerprint we just applied.
	expectUnitPoll(mock, "para-1", "Hello world", "")
	upd, err = svc.ForUnit(ctx, "bob", "para-1", fp)
	require.NoError(t, err)
	assert.True(t, upd.Unchanged)
	assert.Empty(t, upd.Content)
	assert.Equal(t, fp, upd.Fingerprint)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForUnitReportsLockHolder(t *testing.T) {
	svc, mock := newUpdatesService(t)

	expectUnitPoll(mock, "para-1", "Hello", "alice")
	upd, err := svc.ForUnit(context.Background(), "bob", "para-1", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", upd.LockHolder)
	assert.NotNil(t, upd.Online)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForDocumentSummarizesParagraphs(t *testing.T) {
	svc, mock := newUpdatesService(t)

	mock.ExpectQuery("SELECT id, title, status, initiator_id").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "initiator_id", "arbitrator_id", "meeting_id", "created_at", "finalized_at"}).
			AddRow("doc-1", "Weekly Sync", "active", "alice", nil, nil, time.Now(), nil))
	mock.ExpectQuery("SELECT id, document_id, ord, content").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "ord", "content", "last_editor", "last_edited_at"}).
			AddRow("para-1", "doc-1", 1024.0, "one", "alice", time.Now()).
			AddRow("para-2", "doc-1", 2048.0, "two", "bob", time.Now()))
	mock.ExpectQuery("SELECT holder_id FROM locks").
		WithArgs("para-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"holder_id"}))
	mock.ExpectQuery("SELECT holder_id FROM locks").
		WithArgs("para-2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"holder_id"}).AddRow("bob"))

	upd, err := svc.ForDocument(context.Background(), "alice", "doc-1")
	require.NoError(t, err)
	require.Len(t, upd.Paragraphs, 2)
	assert.Equal(t, fingerprint.Of("one"), upd.Paragraphs[0].Fingerprint)
	assert.Equal(t, "bob", upd.Paragraphs[1].LockHolder)
	assert.NoError(t, mock.ExpectationsWereMet())
}
