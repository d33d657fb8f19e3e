package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minutepad/internal/document/model"
	"minutepad/internal/document/repository"
	"minutepad/internal/version"
	"minutepad/pkg/apperr"
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

type denyAll struct{}

func (denyAll) CanAccess(ctx context.Context, docID, participantID string) error {
	return apperr.New(apperr.AuthorizationDenied, "not a member")
}
func (denyAll) CanArbitrate(ctx context.Context, docID, participantID string) error {
	return apperr.New(apperr.AuthorizationDenied, "not the arbitrator")
}
func (denyAll) IsInitiator(ctx context.Context, docID, participantID string) error {
	return apperr.New(apperr.AuthorizationDenied, "not the initiator")
}

func newService(t *testing.T) (*DocumentService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	versions := version.NewRepository(db)
	repo := repository.NewDocumentRepository(db, versions)
	return NewDocumentService(repo, versions, allowAll{}, 30*time.Second), mock, func() { db.Close() }
}

func TestCreateDocumentDefaultsTitle(t *testing.T) {
	svc, mock, closeFn := newService(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), "Untitled Protocol", model.StatusDraft, "alice", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO paragraphs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 1024.0, "", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.CreateDocument(context.Background(), "alice", model.CreateDocRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.DocID)
	assert.NotEmpty(t, resp.ParagraphID)
	assert.NotEqual(t, resp.DocID, resp.ParagraphID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveParagraphReturnsFingerprint(t *testing.T) {
	svc, mock, closeFn := newService(t)
	defer closeFn()

	fp := fingerprint.Of("Hello world")

	mock.ExpectQuery("SELECT document_id FROM paragraphs WHERE id").
		WithArgs("para-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("doc-1"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM documents WHERE id").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectExec("UPDATE paragraphs SET content").
		WithArgs("Hello world", "alice", "para-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO versions").
		WithArgs("doc-1", "para-1", "Hello world", "alice", fp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.Save(context.Background(), "alice", model.SaveRequest{UnitID: "para-1", Content: "Hello world"})
	require.NoError(t, err)
	assert.Equal(t, fp, resp.Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A field unit id routes the save to the document_fields table, creating
// the row on first write.
func TestSaveFieldUnit(t *testing.T) {
	svc, mock, closeFn := newService(t)
	defer closeFn()

	unitID := model.FieldUnitID("doc-1", "discussion")
	fp := fingerprint.Of("minutes so far")

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM documents WHERE id").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectExec("INSERT INTO document_fields").
		WithArgs("doc-1", "discussion").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE document_fields SET content").
		WithArgs("minutes so far", "alice", "doc-1", "discussion", unitID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO versions").
		WithArgs("doc-1", unitID, "minutes so far", "alice", fp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.Save(context.Background(), "alice", model.SaveRequest{UnitID: unitID, Content: "minutes so far"})
	require.NoError(t, err)
	assert.Equal(t, fp, resp.Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWithoutLeaseSurfacesLockConflict(t *testing.T) {
	svc, mock, closeFn := newService(t)
	defer closeFn()

	mock.ExpectQuery("SELECT document_id FROM paragraphs WHERE id").
		WithArgs("para-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("doc-1"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM documents WHERE id").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectExec("UPDATE paragraphs SET content").
		WithArgs("Hello", "bob", "para-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Save(context.Background(), "bob", model.SaveRequest{UnitID: "para-1", Content: "Hello"})
	assert.True(t, apperr.IsKind(err, apperr.LockConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A participant whose lease predates finalization still cannot land a
// save; the write transaction sees the finalized status and rolls back
// before touching any content.
func TestSaveOnFinalizedDocumentRejected(t *testing.T) {
	svc, mock, closeFn := newService(t)
	defer closeFn()

	mock.ExpectQuery("SELECT document_id FROM paragraphs WHERE id").
		WithArgs("para-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("doc-1"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM documents WHERE id").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("finalized"))
	mock.ExpectRollback()

	_, err := svc.Save(context.Background(), "alice", model.SaveRequest{UnitID: "para-1", Content: "late edit"})
	assert.True(t, apperr.IsKind(err, apperr.StateConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteValidatesRole(t *testing.T) {
	svc, _, closeFn := newService(t)
	defer closeFn()

	err := svc.Invite(context.Background(), "alice", model.InviteRequest{DocID: "doc-1", ParticipantID: "bob", Role: "owner"})
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))
}

func TestFinalizeRequiresInitiator(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	versions := version.NewRepository(db)
	svc := NewDocumentService(repository.NewDocumentRepository(db, versions), versions, denyAll{}, 30*time.Second)

	err = svc.Finalize(context.Background(), "mallory", "doc-1")
	assert.True(t, apperr.IsKind(err, apperr.AuthorizationDenied))
}

func TestReorderRejectsSameParagraph(t *testing.T) {
	svc, _, closeFn := newService(t)
	defer closeFn()

	err := svc.Reorder(context.Background(), "alice", model.ReorderRequest{ParagraphA: "para-1", ParagraphB: "para-1"})
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))
}
