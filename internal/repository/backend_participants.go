package repository

import (
	"context"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
)

// BackendParticipantsRepository stores participants in the managed backend.
// Calls are made on behalf of the session attached to ctx
// (domain.ContextWithSession); without one the anon key is used and the
// backend's row policy decides what is visible.
type BackendParticipantsRepository struct {
	client *backend.Client
}

func NewBackendParticipantsRepository(client *backend.Client) *BackendParticipantsRepository {
	return &BackendParticipantsRepository{client: client}
}

var (
	_ ParticipantsRepository = (*BackendParticipantsRepository)(nil)
	_ UserDirectory          = (*backend.Client)(nil)
)

func accessToken(ctx context.Context) string {
	if s := domain.SessionFromContext(ctx); s != nil {
		return s.AccessToken
	}
	return ""
}

func (r *BackendParticipantsRepository) List(ctx context.Context) ([]*domain.Participant, error) {
	return r.client.ListParticipants(ctx, accessToken(ctx))
}

func (r *BackendParticipantsRepository) Insert(ctx context.Context, fields domain.ParticipantFields, ownerID string) error {
	return r.client.InsertParticipant(ctx, accessToken(ctx), fields, ownerID)
}

func (r *BackendParticipantsRepository) Update(ctx context.Context, id string, fields domain.ParticipantFields) error {
	rows, err := r.client.UpdateParticipant(ctx, accessToken(ctx), id, fields)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (r *BackendParticipantsRepository) Delete(ctx context.Context, id string) error {
	rows, err := r.client.DeleteParticipant(ctx, accessToken(ctx), id)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrParticipantNotFound
	}
	return nil
}
