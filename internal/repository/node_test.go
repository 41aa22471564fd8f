package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/twinlock/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nodeRowColumns = []string{"team_id", "node_id", "access_key", "cipher_text", "cipher_type", "hint_groups",
	"keyword", "form_link", "authenticated", "attempts_used", "unlocked", "locked"}

func setupNodeRepo(t *testing.T) (*PostgresNodeRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresNodeRepository(db), mock
}

func TestNodeRepository_Upsert(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO nodes`)).
		WithArgs("ALPHA", "SYS-01", "K1", "XYZZY", "CAESAR", []byte(`[["[HINT 1] shift"]]`), "lock", "https://f").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO nodes`)).
		WithArgs("ALPHA", "SYS-02", "K2", "", "", []byte(`[]`), "", "").
		WillReturnError(errors.New("boom"))

	err := repo.Upsert(context.Background(), models.Node{
		TeamID: "ALPHA", NodeID: "SYS-01", AccessKey: "K1", CipherText: "XYZZY", CipherType: "CAESAR",
		HintGroups: [][]string{{"[HINT 1] shift"}}, Keyword: "lock", FormLink: "https://f",
	})
	require.NoError(t, err)

	err = repo.Upsert(context.Background(), models.Node{TeamID: "ALPHA", NodeID: "SYS-02", AccessKey: "K2"})
	assert.ErrorContains(t, err, "upsert node")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNodeRepository_Get(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM nodes WHERE team_id = $1 AND node_id = $2`)).
		WithArgs("ALPHA", "SYS-01").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("ALPHA", "SYS-01", "K1", "XYZZY", "CAESAR", []byte(`[["a","b"],["c"]]`), "lock", "https://f", true, 1, false, false))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM nodes WHERE team_id = $1 AND node_id = $2`)).
		WithArgs("ALPHA", "SYS-09").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM nodes WHERE team_id = $1 AND node_id = $2`)).
		WithArgs("ALPHA", "SYS-03").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("ALPHA", "SYS-03", "K3", "", "", []byte(`{bad`), "", "", false, 0, false, false))

	n, err := repo.Get(context.Background(), "ALPHA", "SYS-01")
	require.NoError(t, err)
	assert.Equal(t, "XYZZY", n.CipherText)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, n.HintGroups)
	assert.True(t, n.Authenticated)
	assert.Equal(t, 2, n.AttemptsRemaining())

	_, err = repo.Get(context.Background(), "ALPHA", "SYS-09")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Get(context.Background(), "ALPHA", "SYS-03")
	assert.ErrorContains(t, err, "decode hint groups")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNodeRepository_Partner(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE team_id = $1 AND node_id <> $2`)).
		WithArgs("ALPHA", "SYS-01").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("ALPHA", "SYS-02", "K2", "", "", []byte(`[]`), "", "", true, 0, true, false))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE team_id = $1 AND node_id <> $2`)).
		WithArgs("SOLO", "SYS-01").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns))

	p, err := repo.Partner(context.Background(), "ALPHA", "SYS-01")
	require.NoError(t, err)
	assert.Equal(t, "SYS-02", p.NodeID)
	assert.True(t, p.Unlocked)

	_, err = repo.Partner(context.Background(), "SOLO", "SYS-01")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNodeRepository_List(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	teams := []string{"ALPHA", "BRAVO"}
	mock.ExpectQuery(regexp.QuoteMeta(`team_id = ANY($1)`)).
		WithArgs(pq.Array(teams)).
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("ALPHA", "SYS-01", "K1", "", "", []byte(`[]`), "", "", false, 0, false, false).
			AddRow("BRAVO", "SYS-01", "K3", "", "", []byte(`[]`), "", "", true, 3, false, true))
	mock.ExpectQuery(regexp.QuoteMeta(`team_id = ANY($1)`)).
		WillReturnError(errors.New("down"))

	nodes, err := repo.List(context.Background(), teams)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "BRAVO", nodes[1].TeamID)
	assert.True(t, nodes[1].Locked)

	_, err = repo.List(context.Background(), nil)
	assert.ErrorContains(t, err, "list nodes")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNodeRepository_RecordFailure(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SET attempts_used = attempts_used + 1`)).
		WithArgs("ALPHA", "SYS-01", 3).
		WillReturnRows(sqlmock.NewRows([]string{"attempts_used", "locked"}).AddRow(3, true))
	mock.ExpectQuery(regexp.QuoteMeta(`SET attempts_used = attempts_used + 1`)).
		WithArgs("ALPHA", "SYS-01", 3).
		WillReturnRows(sqlmock.NewRows([]string{"attempts_used", "locked"}))

	used, locked, err := repo.RecordFailure(context.Background(), "ALPHA", "SYS-01", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	assert.True(t, locked)

	_, _, err = repo.RecordFailure(context.Background(), "ALPHA", "SYS-01", 3)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNodeRepository_Marks(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET authenticated = true`)).
		WithArgs("ALPHA", "SYS-01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET unlocked = true`)).
		WithArgs("ALPHA", "SYS-01").
		WillReturnError(errors.New("down"))

	require.NoError(t, repo.MarkAuthenticated(context.Background(), "ALPHA", "SYS-01"))
	assert.ErrorContains(t, repo.MarkUnlocked(context.Background(), "ALPHA", "SYS-01"), "mark unlocked")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNodeRepository_Reset(t *testing.T) {
	repo, mock := setupNodeRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET authenticated = false, attempts_used = 0`)).
		WithArgs("ALPHA", "SYS-01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET authenticated = false, attempts_used = 0`)).
		WithArgs("ALPHA", "SYS-09").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Reset(context.Background(), "ALPHA", "SYS-01")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Reset(context.Background(), "ALPHA", "SYS-09")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
