package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/excel"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"

	"go.uber.org/zap"
)

// ParticipantHandler 参与者记录 Handler
type ParticipantHandler struct {
	participants service.ParticipantService
	sessions     *Sessions
	logger       *zap.Logger
}

// NewParticipantHandler 创建参与者 Handler
func NewParticipantHandler(participants service.ParticipantService, sessions *Sessions, logger *zap.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		participants: participants,
		sessions:     sessions,
		logger:       logger,
	}
}

// signedIn attaches the caller's session to the request context.
// Replies 401 and returns ok=false when nobody is signed in.
func (h *ParticipantHandler) signedIn(w http.ResponseWriter, r *http.Request) (ctx context.Context, stop func(), ok bool) {
	sc, err := h.sessions.Open(r.Context(), r)
	if err != nil {
		h.logger.Error("Failed to load session", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(service.MsgUnexpected))
		return nil, nil, false
	}
	if sc.Current() == nil {
		sc.Stop()
		writeJSON(w, http.StatusUnauthorized, Fail(service.MsgNotSignedIn))
		return nil, nil, false
	}
	return sc.WithSession(r.Context()), sc.Stop, true
}

func listQuery(v url.Values) service.ListQuery {
	return service.ListQuery{Search: v.Get("q"), Category: v.Get("category")}
}

// fail writes err as the action's failure message.
func (h *ParticipantHandler) fail(w http.ResponseWriter, err error, fallback string) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, FailWith(service.MsgInvalidInput, verrs))
	case errors.Is(err, repository.ErrParticipantNotFound):
		writeJSON(w, http.StatusNotFound, Fail(service.MsgNotFound))
	case errors.Is(err, service.ErrNotSignedIn):
		writeJSON(w, http.StatusUnauthorized, Fail(service.MsgNotSignedIn))
	default:
		writeJSON(w, http.StatusOK, Fail(service.ActionMessage(err, fallback)))
	}
}

// List GET /api/v1/participants?q=&category=
func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, stop, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	defer stop()

	list, err := h.participants.List(ctx, listQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, err, service.MsgLoadFailed)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

// Create POST /api/v1/participants
func (h *ParticipantHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, stop, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	defer stop()

	var in domain.ParticipantInput
	if !decodeBody(w, r, &in) {
		return
	}
	list, err := h.participants.Create(ctx, in)
	if err != nil {
		h.fail(w, err, service.MsgCreateFailed)
		return
	}
	writeJSON(w, http.StatusOK, OkWith(service.MsgCreated, list))
}

// Update PUT /api/v1/participants/{id}
func (h *ParticipantHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	ctx, stop, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	defer stop()

	var in domain.ParticipantInput
	if !decodeBody(w, r, &in) {
		return
	}
	list, err := h.participants.Update(ctx, id, in)
	if err != nil {
		h.fail(w, err, service.MsgUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, OkWith(service.MsgUpdated, list))
}

// Delete DELETE /api/v1/participants/{id}
func (h *ParticipantHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	ctx, stop, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	defer stop()

	list, err := h.participants.Delete(ctx, id)
	if err != nil {
		h.fail(w, err, service.MsgDeleteFailed)
		return
	}
	writeJSON(w, http.StatusOK, OkWith(service.MsgDeleted, list))
}

// Export GET /api/v1/participants/export?q=&category=
func (h *ParticipantHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx, stop, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	defer stop()

	table, err := h.participants.Export(ctx, listQuery(r.URL.Query()))
	if err != nil {
		if errors.Is(err, service.ErrNothingToExport) {
			writeJSON(w, http.StatusOK, Fail(service.MsgNothingToExport))
			return
		}
		h.fail(w, err, service.MsgLoadFailed)
		return
	}

	data, err := excel.ParticipantWorkbook(table)
	if err != nil {
		h.logger.Error("Failed to generate participant export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(service.MsgUnexpected))
		return
	}

	w.Header().Set("Content-Type", excel.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+table.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
