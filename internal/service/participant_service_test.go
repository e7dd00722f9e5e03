package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	events []domain.ParticipantEvent
}

func (n *recordingNotifier) ParticipantChanged(_ context.Context, ev domain.ParticipantEvent) {
	n.events = append(n.events, ev)
}

// failingRepo fails List with err.
type failingRepo struct {
	repository.ParticipantsRepository
	err error
}

func (r *failingRepo) List(context.Context) ([]*domain.Participant, error) { return nil, r.err }

func newTestParticipantService(repo repository.ParticipantsRepository, n ChangeNotifier) *participantService {
	svc := NewParticipantService(repo, n, time.UTC, zap.NewNop()).(*participantService)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC) }
	return svc
}

func signedIn(userID string) context.Context {
	return domain.ContextWithSession(context.Background(), &domain.Session{AccessToken: "at", User: domain.User{ID: userID}})
}

func input(nik, name string, bb, tb float64) domain.ParticipantInput {
	return domain.ParticipantInput{
		ParticipantFields: domain.ParticipantFields{
			NIK:         nik,
			Name:        name,
			DateOfBirth: domain.Date{Year: 2000, Month: time.May, Day: 17},
			Address:     "Klitikan",
			BB:          bb,
			TB:          tb,
		},
	}
}

func TestParticipantService_RequiresSession(t *testing.T) {
	svc := newTestParticipantService(repository.NewMemoryParticipantsRepo(), nil)
	ctx := context.Background()

	_, err := svc.List(ctx, ListQuery{})
	assert.ErrorIs(t, err, ErrNotSignedIn)
	_, err = svc.Create(ctx, input("1111111111111111", "Ana", 50, 160))
	assert.ErrorIs(t, err, ErrNotSignedIn)
	_, err = svc.Export(ctx, ListQuery{})
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestParticipantService_CreateListFilter(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestParticipantService(repository.NewMemoryParticipantsRepo(), notifier)
	ctx := signedIn("u-1")

	list, err := svc.Create(ctx, input("1111111111111111", "Ana", 50, 160))
	require.NoError(t, err)
	require.NotNil(t, list)
	assert.Equal(t, 1, list.Total)

	list, err = svc.Create(ctx, input("2222222222222222", "Budi", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "Budi", list.Items[0].Name, "newest first")

	require.Len(t, notifier.events, 2)
	assert.Equal(t, domain.EventParticipantCreated, notifier.events[1].Event)
	assert.Equal(t, list.Items[0].ID, notifier.events[1].ParticipantID)
	assert.Equal(t, "u-1", notifier.events[1].UserID)

	normal, err := svc.List(ctx, ListQuery{Category: domain.CategoryNormal})
	require.NoError(t, err)
	assert.Equal(t, 2, normal.Total)
	require.Equal(t, 1, normal.Count)
	assert.Equal(t, "Ana", normal.Items[0].Name)
	assert.Equal(t, 23, normal.Items[0].AgeYears)
	assert.InDelta(t, 19.53, normal.Items[0].BMI, 0.01)
	assert.Equal(t, domain.CategoryNormal, normal.Items[0].BMICategory)

	noData, err := svc.List(ctx, ListQuery{Category: domain.CategoryNoData})
	require.NoError(t, err)
	require.Equal(t, 1, noData.Count)
	assert.Equal(t, "Budi", noData.Items[0].Name)

	all, err := svc.List(ctx, ListQuery{Search: "BUD"})
	require.NoError(t, err)
	assert.Equal(t, 1, all.Count)

	_, err = svc.List(ctx, ListQuery{Category: "Gemuk"})
	var verrs domain.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestParticipantService_ValidationBlocksSubmission(t *testing.T) {
	repo := repository.NewMemoryParticipantsRepo()
	notifier := &recordingNotifier{}
	svc := newTestParticipantService(repo, notifier)
	ctx := signedIn("u-1")

	in := input("123", "Ana", -1, 160)
	in.DateOfBirth = domain.Date{Year: 2030, Month: 1, Day: 1}
	_, err := svc.Create(ctx, in)
	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "nik")
	assert.Contains(t, verrs, "bb")
	assert.Equal(t, "Tanggal lahir tidak boleh di masa depan", verrs["date_of_birth"])

	list, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
	assert.Empty(t, notifier.events)
}

func TestParticipantService_UpdateDelete(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestParticipantService(repository.NewMemoryParticipantsRepo(), notifier)
	ctx := signedIn("u-1")

	list, err := svc.Create(ctx, input("1111111111111111", "Ana", 50, 160))
	require.NoError(t, err)
	id := list.Items[0].ID

	in := input("1111111111111111", "Ana Lestari", 80, 160)
	in.Custom = []domain.CustomFieldInput{{Label: " Catatan ", Value: "kontrol", Type: domain.CustomFieldText}}
	list, err = svc.Update(ctx, id, in)
	require.NoError(t, err)
	assert.Equal(t, "Ana Lestari", list.Items[0].Name)
	assert.Equal(t, domain.CategoryObese, list.Items[0].BMICategory)
	assert.Equal(t, map[string]string{"Catatan": "kontrol"}, list.Items[0].CustomFields)

	_, err = svc.Update(ctx, "missing", in)
	assert.ErrorIs(t, err, repository.ErrParticipantNotFound)

	list, err = svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	_, err = svc.Delete(ctx, id)
	assert.ErrorIs(t, err, repository.ErrParticipantNotFound)

	var kinds []string
	for _, ev := range notifier.events {
		kinds = append(kinds, ev.Event)
		assert.Equal(t, id, ev.ParticipantID)
		assert.Equal(t, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC).Unix(), ev.AtUnix)
	}
	assert.Equal(t, []string{domain.EventParticipantCreated, domain.EventParticipantUpdated, domain.EventParticipantDeleted}, kinds)
}

func TestParticipantService_Export(t *testing.T) {
	svc := newTestParticipantService(repository.NewMemoryParticipantsRepo(), nil)
	ctx := signedIn("u-1")

	_, err := svc.Export(ctx, ListQuery{})
	assert.ErrorIs(t, err, ErrNothingToExport)

	_, err = svc.Create(ctx, input("1111111111111111", "Ana", 50, 160))
	require.NoError(t, err)
	_, err = svc.Create(ctx, input("2222222222222222", "Budi", 0, 0))
	require.NoError(t, err)

	table, err := svc.Export(ctx, ListQuery{Category: domain.CategoryNoData})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 1, table.Rows[0][0])
	assert.Equal(t, "Budi", table.Rows[0][2])
	assert.Equal(t, "Data_Peserta_Posyandu_2024-03-01_09-15.xlsx", table.FileName)

	table, err = svc.Export(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	_, err = svc.Export(ctx, ListQuery{Search: "nobody"})
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestParticipantService_LoadFailure(t *testing.T) {
	boom := errors.New("backend unavailable")
	svc := newTestParticipantService(&failingRepo{err: boom}, nil)

	_, err := svc.List(signedIn("u-1"), ListQuery{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, MsgLoadFailed, ActionMessage(err, MsgLoadFailed))
}
