package repository

import (
	"context"
	"errors"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
)

// ErrParticipantNotFound is returned by Update/Delete when no row matched the id
// (missing, or hidden by the backend's row policy).
var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantsRepository 参与者存储接口
// 三种实现：托管后端（默认）、PostgreSQL 直连、内存
type ParticipantsRepository interface {
	// List returns every participant visible to the caller, newest first.
	List(ctx context.Context) ([]*domain.Participant, error)

	// Insert creates a participant owned by ownerID.
	Insert(ctx context.Context, fields domain.ParticipantFields, ownerID string) error

	// Update replaces the writable fields of participant id.
	Update(ctx context.Context, id string, fields domain.ParticipantFields) error

	// Delete removes participant id.
	Delete(ctx context.Context, id string) error
}

// UserDirectory resolves login handles to e-mail addresses.
type UserDirectory interface {
	// LookupEmailByUsername returns ok=false when no user has that username.
	LookupEmailByUsername(ctx context.Context, username string) (email string, ok bool, err error)
}
