package domain

import "time"

// 参与者变更事件类型
const (
	EventParticipantCreated = "participant.created"
	EventParticipantUpdated = "participant.updated"
	EventParticipantDeleted = "participant.deleted"
)

// ParticipantEvent is published after a successful create, update or delete.
// Receivers refetch the list; the event carries no record data.
type ParticipantEvent struct {
	Event         string    `json:"event"`
	ParticipantID string    `json:"participant_id,omitempty"`
	UserID        string    `json:"user_id"`
	At            time.Time `json:"-"`
	AtUnix        int64     `json:"at"`
}

// NewParticipantEvent stamps an event at at.
func NewParticipantEvent(event, participantID, userID string, at time.Time) ParticipantEvent {
	return ParticipantEvent{
		Event:         event,
		ParticipantID: participantID,
		UserID:        userID,
		At:            at,
		AtUnix:        at.Unix(),
	}
}
