package repository

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var participantColumns = []string{
	"id", "no", "nik", "name", "date_of_birth", "address",
	"bb", "tb", "lila", "gds", "au", "immunization", "lp", "td", "hb", "chol",
	"custom_fields", "created_at", "updated_at", "user_id",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresParticipantsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock, NewPostgresParticipantsRepository(db)
}

func sampleFields() domain.ParticipantFields {
	return domain.ParticipantFields{
		NIK:          "1111111111111111",
		Name:         "Ana",
		DateOfBirth:  domain.Date{Year: 2000, Month: time.May, Day: 17},
		Address:      "Klitikan RT 01",
		BB:           50,
		TB:           160,
		TD:           "120/80",
		CustomFields: map[string]string{"Catatan": "sehat"},
	}
}

func TestPostgresParticipants_List(t *testing.T) {
	_, mock, repo := setupMockDB(t)

	created := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(participantColumns).
		AddRow("p-2", 2, "2222222222222222", "Budi", time.Date(1990, 2, 1, 0, 0, 0, 0, time.UTC), nil,
			0.0, 0.0, nil, nil, nil, nil, nil, nil, nil, nil,
			[]byte(`{}`), created.Add(time.Hour), nil, "u-1").
		AddRow("p-1", 1, "1111111111111111", "Ana", time.Date(2000, 5, 17, 0, 0, 0, 0, time.UTC), "Klitikan RT 01",
			50.0, 160.0, 23.5, 90.0, "N", "Lengkap", 70.0, "120/80", 12.5, 180.0,
			[]byte(`{"Catatan":"sehat"}`), created, created.Add(2*time.Hour), "u-1")

	mock.ExpectQuery(`SELECT(.|\n)*FROM participants(.|\n)*ORDER BY created_at DESC`).WillReturnRows(rows)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	budi, ana := list[0], list[1]
	assert.Equal(t, "Budi", budi.Name)
	assert.Equal(t, "", budi.Address)
	assert.Equal(t, 0.0, budi.LILA)
	assert.True(t, budi.UpdatedAt.IsZero())
	assert.Empty(t, budi.CustomFields)

	assert.Equal(t, 1, ana.No)
	assert.Equal(t, domain.Date{Year: 2000, Month: time.May, Day: 17}, ana.DateOfBirth)
	assert.Equal(t, 12.5, ana.HB)
	assert.Equal(t, "120/80", ana.TD)
	assert.Equal(t, map[string]string{"Catatan": "sehat"}, ana.CustomFields)
	assert.Equal(t, created.Add(2*time.Hour), ana.UpdatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresParticipants_List_BadCustomFields(t *testing.T) {
	_, mock, repo := setupMockDB(t)

	rows := sqlmock.NewRows(participantColumns).
		AddRow("p-1", 1, "1111111111111111", "Ana", nil, nil,
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			[]byte(`[1,2]`), time.Now(), nil, nil)
	mock.ExpectQuery(`SELECT`).WillReturnRows(rows)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom_fields")
}

func TestPostgresParticipants_Insert(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	f := sampleFields()

	mock.ExpectExec(`INSERT INTO participants`).
		WithArgs(f.NIK, f.Name, "2000-05-17", f.Address,
			f.BB, f.TB, f.LILA, f.GDS, f.AU, f.Immunization, f.LP, f.TD, f.HB, f.Chol,
			`{"Catatan":"sehat"}`, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), f, "u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresParticipants_UpdateDelete(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	f := sampleFields()
	f.CustomFields = nil

	mock.ExpectExec(`UPDATE participants SET`).
		WithArgs("p-1", f.NIK, f.Name, "2000-05-17", f.Address,
			f.BB, f.TB, f.LILA, f.GDS, f.AU, f.Immunization, f.LP, f.TD, f.HB, f.Chol, `{}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE participants SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM participants`).
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM participants`).
		WithArgs("p-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, repo.Update(ctx, "p-1", f))
	assert.ErrorIs(t, repo.Update(ctx, "p-404", f), ErrParticipantNotFound)
	require.NoError(t, repo.Delete(ctx, "p-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "p-404"), ErrParticipantNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresParticipants_ExecError(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	mock.ExpectExec(`DELETE FROM participants`).WillReturnError(errors.New("connection reset"))

	err := repo.Delete(context.Background(), "p-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrParticipantNotFound)
	assert.Contains(t, err.Error(), "failed to delete participant")
}

func TestEnsureSchema(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserDirectory(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	dir := NewPostgresUserDirectory(db)

	mock.ExpectQuery(`SELECT email FROM users`).
		WithArgs("budi").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("budi@example.com"))
	mock.ExpectQuery(`SELECT email FROM users`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	email, ok, err := dir.LookupEmailByUsername(context.Background(), "budi")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "budi@example.com", email)

	_, ok, err = dir.LookupEmailByUsername(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryParticipants(t *testing.T) {
	repo := NewMemoryParticipantsRepo()
	clock := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { clock = clock.Add(time.Minute); return clock }
	ctx := context.Background()

	ana := sampleFields()
	budi := domain.ParticipantFields{NIK: "2222222222222222", Name: "Budi"}
	require.NoError(t, repo.Insert(ctx, ana, "u-1"))
	require.NoError(t, repo.Insert(ctx, budi, "u-1"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Budi", list[0].Name)
	assert.Equal(t, 2, list[0].No)
	assert.Equal(t, "Ana", list[1].Name)
	assert.Equal(t, "u-1", list[1].UserID)
	assert.NotEmpty(t, list[1].ID)

	// returned records are copies
	list[1].CustomFields["Catatan"] = "changed"
	list[1].Name = "changed"
	again, _ := repo.List(ctx)
	assert.Equal(t, "Ana", again[1].Name)
	assert.Equal(t, "sehat", again[1].CustomFields["Catatan"])

	ana.Name = "Ana Lestari"
	require.NoError(t, repo.Update(ctx, list[1].ID, ana))
	again, _ = repo.List(ctx)
	assert.Equal(t, "Ana Lestari", again[1].Name)
	assert.False(t, again[1].UpdatedAt.IsZero())

	require.NoError(t, repo.Delete(ctx, list[0].ID))
	assert.ErrorIs(t, repo.Delete(ctx, list[0].ID), ErrParticipantNotFound)
	assert.ErrorIs(t, repo.Update(ctx, "missing", ana), ErrParticipantNotFound)
	again, _ = repo.List(ctx)
	require.Len(t, again, 1)

	require.NoError(t, repo.Insert(ctx, budi, "u-2"))
	again, _ = repo.List(ctx)
	assert.Equal(t, 3, again[0].No)
}

func TestMemoryUserDirectory(t *testing.T) {
	dir := NewMemoryUserDirectory(map[string]string{"budi": "budi@example.com", "kosong": ""})

	email, ok, err := dir.LookupEmailByUsername(context.Background(), "budi")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "budi@example.com", email)

	_, ok, _ = dir.LookupEmailByUsername(context.Background(), "kosong")
	assert.False(t, ok)
	_, ok, _ = dir.LookupEmailByUsername(context.Background(), "nobody")
	assert.False(t, ok)
}

func TestBackendParticipants_UsesSessionToken(t *testing.T) {
	var (
		mu      sync.Mutex
		gotAuth []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"p-1","name":"Ana"}]`))
		case http.MethodPatch:
			_, _ = w.Write([]byte(`[]`))
		case http.MethodDelete:
			_, _ = w.Write([]byte(`[{"id":"p-1"}]`))
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	repo := NewBackendParticipantsRepository(backend.NewClient(srv.URL, "anon", time.Second, zap.NewNop()))
	ctx := domain.ContextWithSession(context.Background(), &domain.Session{AccessToken: "at-1"})

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, repo.Insert(ctx, sampleFields(), "u-1"))
	assert.ErrorIs(t, repo.Update(ctx, "p-1", sampleFields()), ErrParticipantNotFound)
	require.NoError(t, repo.Delete(ctx, "p-1"))

	_, err = repo.List(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer at-1", "Bearer at-1", "Bearer at-1", "Bearer at-1", "Bearer anon"}, gotAuth)
}
