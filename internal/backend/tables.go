package backend

import (
	"context"
	"fmt"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"go.uber.org/zap"
)

const (
	participantsPath = "/rest/v1/participants"
	usersPath        = "/rest/v1/users"
)

// participantRow is the insert payload: the writable fields plus the owner.
type participantRow struct {
	domain.ParticipantFields
	UserID string `json:"user_id"`
}

// ListParticipants 获取全部参与者，最新创建的在前
func (c *Client) ListParticipants(ctx context.Context, accessToken string) ([]*domain.Participant, error) {
	var out []*domain.Participant
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer(accessToken)).
		SetQueryParam("select", "*").
		SetQueryParam("order", "created_at.desc").
		SetResult(&out).
		Get(participantsPath)
	if err != nil {
		c.logger.Error("Backend list participants failed", zap.Error(err))
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return out, nil
}

// InsertParticipant creates one participant owned by ownerID.
func (c *Client) InsertParticipant(ctx context.Context, accessToken string, fields domain.ParticipantFields, ownerID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer(accessToken)).
		SetHeader("Prefer", "return=minimal").
		SetBody([]participantRow{{ParticipantFields: fields, UserID: ownerID}}).
		Post(participantsPath)
	if err != nil {
		c.logger.Error("Backend insert participant failed", zap.Error(err))
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

// UpdateParticipant patches participant id and returns the affected rows.
func (c *Client) UpdateParticipant(ctx context.Context, accessToken, id string, fields domain.ParticipantFields) ([]*domain.Participant, error) {
	var out []*domain.Participant
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer(accessToken)).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetBody(fields).
		SetResult(&out).
		Patch(participantsPath)
	if err != nil {
		c.logger.Error("Backend update participant failed", zap.String("participant_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update participant: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return out, nil
}

// DeleteParticipant deletes participant id and returns the affected rows.
func (c *Client) DeleteParticipant(ctx context.Context, accessToken, id string) ([]*domain.Participant, error) {
	var out []*domain.Participant
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer(accessToken)).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetResult(&out).
		Delete(participantsPath)
	if err != nil {
		c.logger.Error("Backend delete participant failed", zap.String("participant_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to delete participant: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return out, nil
}

// LookupEmailByUsername resolves a login handle through the users table.
// ok is false when no user has that username.
func (c *Client) LookupEmailByUsername(ctx context.Context, username string) (string, bool, error) {
	var out []struct {
		Email string `json:"email"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer("")).
		SetQueryParam("select", "email").
		SetQueryParam("username", "eq."+username).
		SetQueryParam("limit", "1").
		SetResult(&out).
		Get(usersPath)
	if err != nil {
		c.logger.Error("Backend username lookup failed", zap.Error(err))
		return "", false, fmt.Errorf("failed to look up username: %w", err)
	}
	if resp.IsError() {
		return "", false, parseError(resp)
	}
	if len(out) == 0 || out[0].Email == "" {
		return "", false, nil
	}
	return out[0].Email, true, nil
}
