package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"github.com/google/uuid"
)

// MemoryParticipantsRepo supports STORAGE_DRIVER=memory (local runs, tests).
// Data is lost on restart.
type MemoryParticipantsRepo struct {
	mu     sync.RWMutex
	rows   []*domain.Participant // insertion order
	nextNo int
	now    func() time.Time
}

func NewMemoryParticipantsRepo() *MemoryParticipantsRepo {
	return &MemoryParticipantsRepo{nextNo: 1, now: time.Now}
}

var _ ParticipantsRepository = (*MemoryParticipantsRepo)(nil)

func (r *MemoryParticipantsRepo) List(_ context.Context) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Participant, 0, len(r.rows))
	for i := len(r.rows) - 1; i >= 0; i-- {
		out = append(out, cloneParticipant(r.rows[i]))
	}
	return out, nil
}

func (r *MemoryParticipantsRepo) Insert(_ context.Context, fields domain.ParticipantFields, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &domain.Participant{
		ID:        uuid.NewString(),
		No:        r.nextNo,
		CreatedAt: r.now(),
		UserID:    ownerID,
	}
	applyFields(p, fields)
	r.nextNo++
	r.rows = append(r.rows, p)
	return nil
}

func (r *MemoryParticipantsRepo) Update(_ context.Context, id string, fields domain.ParticipantFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.rows {
		if p.ID == id {
			applyFields(p, fields)
			p.UpdatedAt = r.now()
			return nil
		}
	}
	return ErrParticipantNotFound
}

func (r *MemoryParticipantsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.rows {
		if p.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return ErrParticipantNotFound
}

func applyFields(p *domain.Participant, f domain.ParticipantFields) {
	p.NIK = f.NIK
	p.Name = f.Name
	p.DateOfBirth = f.DateOfBirth
	p.Address = f.Address
	p.BB, p.TB, p.LILA, p.GDS = f.BB, f.TB, f.LILA, f.GDS
	p.AU = f.AU
	p.Immunization = f.Immunization
	p.LP = f.LP
	p.TD = f.TD
	p.HB, p.Chol = f.HB, f.Chol
	p.CustomFields = make(map[string]string, len(f.CustomFields))
	for k, v := range f.CustomFields {
		p.CustomFields[k] = v
	}
}

func cloneParticipant(p *domain.Participant) *domain.Participant {
	cp := *p
	cp.CustomFields = p.Fields().CustomFields
	return &cp
}

// MemoryUserDirectory is a fixed username -> e-mail table.
type MemoryUserDirectory struct {
	emails map[string]string
}

// NewMemoryUserDirectory copies users (username -> e-mail).
func NewMemoryUserDirectory(users map[string]string) *MemoryUserDirectory {
	m := make(map[string]string, len(users))
	for u, e := range users {
		m[strings.TrimSpace(u)] = e
	}
	return &MemoryUserDirectory{emails: m}
}

var _ UserDirectory = (*MemoryUserDirectory)(nil)

func (d *MemoryUserDirectory) LookupEmailByUsername(_ context.Context, username string) (string, bool, error) {
	email, ok := d.emails[username]
	return email, ok && email != "", nil
}
