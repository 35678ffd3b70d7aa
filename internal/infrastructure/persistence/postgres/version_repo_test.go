package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/pkg/errors"
)

func newMockRepo(t *testing.T) (*VersionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewVersionRepository(NewClientFromDB(db)), mock
}

func TestVersionRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	version := entity.NewVersion("p1", 0, "initial generation", []string{"index.html"}, []entity.FileSnapshot{
		{Path: "index.html", Content: []byte("<html></html>"), FileType: entity.FileTypeMarkup},
	}, "user-1")
	require.Equal(t, "1.0.0", version.Number)

	mock.ExpectQuery(`INSERT INTO versions`).
		WithArgs("p1", 1, "1.0.0", "initial generation", sqlmock.AnyArg(), sqlmock.AnyArg(), false, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("v-uuid", time.Now()))

	err := repo.Create(context.Background(), version)
	require.NoError(t, err)
	assert.Equal(t, "v-uuid", version.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_GetLatestSeq_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) FROM versions`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	seq, err := repo.GetLatestSeq(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, seq, "a project without versions reports seq 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .* FROM versions`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "seq", "number", "changelog",
			"changed_paths", "snapshot", "bookmarked", "created_by", "created_at",
		}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrVersionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .* FROM versions`).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "seq", "number", "changelog",
			"changed_paths", "snapshot", "bookmarked", "created_by", "created_at",
		}).AddRow(
			"v1", "p1", 3, "1.0.2", "add pricing page",
			[]byte(`["pricing.html"]`),
			[]byte(`[{"path":"pricing.html","content":"PGgxPg==","file_type":"markup"}]`),
			true, "user-1", time.Now(),
		))

	version, err := repo.GetByID(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.2", version.Number)
	assert.Equal(t, []string{"pricing.html"}, version.ChangedPaths)
	require.Len(t, version.Snapshot, 1)
	assert.Equal(t, "pricing.html", version.Snapshot[0].Path)
	assert.True(t, version.Bookmarked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_SetBookmarked_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE versions SET bookmarked`).
		WithArgs(true, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetBookmarked(context.Background(), "missing", true)
	assert.ErrorIs(t, err, errors.ErrVersionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
