package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
)

func newRoster(t *testing.T) *repository.EmployeesRepositoryImpl {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE Employee (
		id          TEXT PRIMARY KEY,
		displayname TEXT NOT NULL,
		attends     BOOLEAN NOT NULL DEFAULT 1
	)`)
	require.NoError(t, err)
	return repository.NewEmployeesRepository(db)
}

func TestRegisterIsCreateOnly(t *testing.T) {
	repo := newRoster(t)
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, "u1", "Adele Vance"))
	err := repo.Register(ctx, "u1", "Someone Else")
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	e, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Adele Vance", e.DisplayName)
	assert.True(t, e.Attends)
}

func TestRegisterConcurrentSameID(t *testing.T) {
	repo := newRoster(t)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Register(ctx, "u1", "Lee Gu")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	}
	assert.Equal(t, 1, created)
}

func TestAttendanceRoundTrip(t *testing.T) {
	repo := newRoster(t)
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, "b", "Lee Gu"))
	require.NoError(t, repo.Register(ctx, "a", "Adele Vance"))
	require.NoError(t, repo.Register(ctx, "c", "Miriam Graham"))

	require.NoError(t, repo.SetAttendance(ctx, "b", false))
	list, err := repo.ListAttending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(list))

	require.NoError(t, repo.SetAttendance(ctx, "b", true))
	list, err = repo.ListAttending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(list))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetAttendanceUnknown(t *testing.T) {
	repo := newRoster(t)

	err := repo.SetAttendance(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNamesAreBoundNotInterpolated(t *testing.T) {
	repo := newRoster(t)
	ctx := context.Background()

	name := "Robert'); DROP TABLE Employee;--"
	require.NoError(t, repo.Register(ctx, "x' OR '1'='1", name))
	require.NoError(t, repo.Register(ctx, "y", "Plain"))

	e, err := repo.Get(ctx, "x' OR '1'='1")
	require.NoError(t, err)
	assert.Equal(t, name, e.DisplayName)

	require.NoError(t, repo.SetAttendance(ctx, "x' OR '1'='1", false))
	list, err := repo.ListAttending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, ids(list))
}

func TestListAttendingEmpty(t *testing.T) {
	repo := newRoster(t)

	list, err := repo.ListAttending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func ids(es []model.Employee) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}
