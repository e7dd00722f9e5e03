package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/excel"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// fakeSlots keeps one session per browser session id.
type fakeSlots struct {
	mu         sync.Mutex
	sessions   map[string]*domain.Session
	signOutErr error
}

func (f *fakeSlots) factory(sid string) AuthSlot { return &fakeSlot{slots: f, sid: sid} }

type fakeSlot struct {
	slots *fakeSlots
	sid   string
}

func (s *fakeSlot) SignIn(_ context.Context, email, password string) (*domain.Session, error) {
	if password != "secret1" {
		return nil, &backend.Error{Status: 400, Message: "Invalid login credentials"}
	}
	sess := &domain.Session{
		AccessToken: "at-" + s.sid,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        domain.User{ID: "u-1", Email: email},
	}
	s.slots.mu.Lock()
	s.slots.sessions[s.sid] = sess
	s.slots.mu.Unlock()
	return sess, nil
}

func (s *fakeSlot) SignUp(context.Context, string, string, string) error { return nil }

func (s *fakeSlot) ResetPassword(context.Context, string, string) error { return nil }

func (s *fakeSlot) SignOut(context.Context) error {
	s.slots.mu.Lock()
	defer s.slots.mu.Unlock()
	if s.slots.signOutErr != nil {
		return s.slots.signOutErr
	}
	delete(s.slots.sessions, s.sid)
	return nil
}

func (s *fakeSlot) GetSession(context.Context) (*domain.Session, error) {
	s.slots.mu.Lock()
	defer s.slots.mu.Unlock()
	return s.slots.sessions[s.sid], nil
}

func (s *fakeSlot) OnAuthStateChange(domain.AuthStateListener) func() { return func() {} }

type testApp struct {
	router   *Router
	slots    *fakeSlots
	sessions *Sessions
}

func newTestApp() *testApp {
	logger := zap.NewNop()
	slots := &fakeSlots{sessions: map[string]*domain.Session{}}
	sessions := NewSessions(slots.factory, time.Hour, false, logger)

	dir := repository.NewMemoryUserDirectory(map[string]string{"ana": "ana@example.com"})
	auth := service.NewAuthService(dir, "http://localhost:5173", logger)
	participants := service.NewParticipantService(repository.NewMemoryParticipantsRepo(), nil, time.UTC, logger)

	r := NewRouter(logger)
	r.RegisterHealthRoutes()
	r.RegisterAuthRoutes(NewAuthHandler(auth, sessions, logger))
	r.RegisterParticipantRoutes(NewParticipantHandler(participants, sessions, logger))
	return &testApp{router: r, slots: slots, sessions: sessions}
}

func (a *testApp) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "ana", "password": "secret1"}, nil)
	res := decode(t, w)
	require.Equal(t, ResultSuccess, res.Code, res.Message)
	c := sessionCookie(w)
	require.NotNil(t, c)
	return c
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var res Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func participantBody(nik, name string, bb, tb float64) map[string]any {
	return map[string]any{
		"nik":           nik,
		"name":          name,
		"date_of_birth": "2000-05-17",
		"address":       "Klitikan",
		"bb":            bb,
		"tb":            tb,
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp()
	w := app.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ResultSuccess, decode(t, w).Code)
}

func TestAuth_SignInFlow(t *testing.T) {
	app := newTestApp()

	w := app.do(t, http.MethodGet, "/api/v1/auth/session", nil, nil)
	assert.JSONEq(t, "null", string(decode(t, w).Result))

	w = app.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "an", "password": "123"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	res := decode(t, w)
	assert.Equal(t, ResultError, res.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(res.Result, &fields))
	assert.Equal(t, "Masukkan username atau email", fields["login"])
	assert.Equal(t, "Kata sandi minimal 6 karakter", fields["password"])

	w = app.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "budi", "password": "secret1"}, nil)
	res = decode(t, w)
	assert.Equal(t, ResultError, res.Code)
	assert.Equal(t, service.MsgUsernameNotFound, res.Message)

	w = app.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "ana@example.com", "password": "wrong12"}, nil)
	assert.Equal(t, "Invalid login credentials", decode(t, w).Message)

	cookie := app.signIn(t)
	w = app.do(t, http.MethodGet, "/api/v1/auth/session", nil, cookie)
	var view sessionView
	require.NoError(t, json.Unmarshal(decode(t, w).Result, &view))
	require.NotNil(t, view.User)
	assert.Equal(t, "ana@example.com", view.User.Email)
	assert.NotZero(t, view.ExpiresAt)

	w = app.do(t, http.MethodPost, "/api/v1/auth/sign-out", nil, cookie)
	res = decode(t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, service.MsgSignedOut, res.Message)
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	w = app.do(t, http.MethodGet, "/api/v1/auth/session", nil, cookie)
	assert.JSONEq(t, "null", string(decode(t, w).Result))
}

func TestAuth_SignUpAndForgotPassword(t *testing.T) {
	app := newTestApp()

	w := app.do(t, http.MethodPost, "/api/v1/auth/sign-up", map[string]string{"login": "new@example.com", "password": "secret1"}, nil)
	res := decode(t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, service.MsgSignUpSent, res.Message)

	w = app.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"login": "ana"}, nil)
	assert.Equal(t, service.MsgResetLinkSent, decode(t, w).Message)

	w = app.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"login": "nobody"}, nil)
	assert.Equal(t, service.MsgUsernameNotFound, decode(t, w).Message)
}

func TestAuth_OverlappingSubmissionRejected(t *testing.T) {
	app := newTestApp()
	cookie := app.signIn(t)

	form := app.sessions.Form(cookie.Value)
	require.NoError(t, form.Begin())

	w := app.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "ana", "password": "secret1"}, cookie)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, service.MsgSubmitting, decode(t, w).Message)
}

func TestAuth_SignOutFailureKeepsSession(t *testing.T) {
	app := newTestApp()
	cookie := app.signIn(t)
	app.slots.signOutErr = errors.New("network down")

	w := app.do(t, http.MethodPost, "/api/v1/auth/sign-out", nil, cookie)
	res := decode(t, w)
	assert.Equal(t, ResultError, res.Code)
	assert.Equal(t, service.MsgSignOutFail, res.Message)

	w = app.do(t, http.MethodGet, "/api/v1/participants", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessions_FormsBounded(t *testing.T) {
	app := newTestApp()

	for i := 0; i < 200; i++ {
		w := app.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "ana", "password": "secret1"}, nil)
		require.Equal(t, ResultSuccess, decode(t, w).Code)
		w = app.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"login": "ana"}, nil)
		require.Equal(t, ResultSuccess, decode(t, w).Code)
	}
	assert.Zero(t, app.sessions.formCount())

	for i := 0; i < 50; i++ {
		w := app.do(t, http.MethodPost, "/api/v1/auth/sign-in", map[string]string{"login": "ana", "password": "wrong12"}, nil)
		require.Equal(t, ResultError, decode(t, w).Code)
	}
	assert.Equal(t, 50, app.sessions.formCount())

	// Failed 表单超过 ttl 后被清理
	later := time.Now().Add(2 * time.Hour)
	app.sessions.now = func() time.Time { return later }
	app.sessions.Form("f0d3c1b6-5e0a-4b7e-9d55-4c1f3a2b9e01")
	assert.Equal(t, 1, app.sessions.formCount())
}

func TestSessions_SubmittingFormNotExpired(t *testing.T) {
	sessions := NewSessions((&fakeSlots{sessions: map[string]*domain.Session{}}).factory, time.Minute, false, zap.NewNop())
	form := sessions.Form("a")
	require.NoError(t, form.Begin())
	sessions.Release("a")

	sessions.now = func() time.Time { return time.Now().Add(time.Hour) }
	sessions.Form("b")
	assert.Same(t, form, sessions.Form("a"))
	assert.Equal(t, service.FormSubmitting, form.State())
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	app := newTestApp()
	assert.Equal(t, http.StatusMethodNotAllowed, app.do(t, http.MethodGet, "/api/v1/auth/sign-in", nil, nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, app.do(t, http.MethodPatch, "/api/v1/participants", nil, nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, app.do(t, http.MethodPost, "/api/v1/participants/export", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPut, "/api/v1/participants/a/b", nil, nil).Code)
}

func TestParticipants_RequireSession(t *testing.T) {
	app := newTestApp()
	for _, path := range []string{"/api/v1/participants", "/api/v1/participants/export"} {
		w := app.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, service.MsgNotSignedIn, decode(t, w).Message)
	}

	// a cookie without stored session is signed out too
	w := app.do(t, http.MethodGet, "/api/v1/participants", nil, &http.Cookie{Name: SessionCookie, Value: "7f9c2ba4-e88f-41a1-9a4b-5d3c3f2b1a00"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestParticipants_CRUD(t *testing.T) {
	app := newTestApp()
	cookie := app.signIn(t)

	w := app.do(t, http.MethodPost, "/api/v1/participants", participantBody("123", "Ana", 50, 160), cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(decode(t, w).Result, &fields))
	assert.Equal(t, "NIK harus berisi 16 digit", fields["nik"])

	w = app.do(t, http.MethodPost, "/api/v1/participants", participantBody("1111111111111111", "Ana", 50, 160), cookie)
	res := decode(t, w)
	require.Equal(t, ResultSuccess, res.Code, res.Message)
	assert.Equal(t, service.MsgCreated, res.Message)

	w = app.do(t, http.MethodPost, "/api/v1/participants", participantBody("2222222222222222", "Budi", 0, 0), cookie)
	require.Equal(t, ResultSuccess, decode(t, w).Code)

	w = app.do(t, http.MethodGet, "/api/v1/participants?category=Normal", nil, cookie)
	var list struct {
		Total int `json:"total"`
		Count int `json:"count"`
		Items []struct {
			ID          string  `json:"id"`
			Name        string  `json:"name"`
			BMI         float64 `json:"bmi"`
			BMICategory string  `json:"bmi_category"`
			UserID      string  `json:"user_id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Result, &list))
	assert.Equal(t, 2, list.Total)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Ana", list.Items[0].Name)
	assert.Equal(t, domain.CategoryNormal, list.Items[0].BMICategory)
	assert.InDelta(t, 19.53, list.Items[0].BMI, 0.01)
	assert.Equal(t, "u-1", list.Items[0].UserID)
	id := list.Items[0].ID

	w = app.do(t, http.MethodPut, "/api/v1/participants/"+id, participantBody("1111111111111111", "Ana Lestari", 50, 160), cookie)
	res = decode(t, w)
	assert.Equal(t, service.MsgUpdated, res.Message)

	w = app.do(t, http.MethodPut, "/api/v1/participants/missing", participantBody("1111111111111111", "Ana", 50, 160), cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.MsgNotFound, decode(t, w).Message)

	w = app.do(t, http.MethodDelete, "/api/v1/participants/"+id, nil, cookie)
	assert.Equal(t, service.MsgDeleted, decode(t, w).Message)

	w = app.do(t, http.MethodDelete, "/api/v1/participants/"+id, nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/participants?category=Gemuk", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParticipants_Export(t *testing.T) {
	app := newTestApp()
	cookie := app.signIn(t)

	w := app.do(t, http.MethodGet, "/api/v1/participants/export", nil, cookie)
	assert.Equal(t, service.MsgNothingToExport, decode(t, w).Message)

	body := participantBody("1111111111111111", "Ana", 50, 160)
	body["custom"] = []map[string]string{{"label": "Catatan", "value": "sehat", "type": "text"}}
	require.Equal(t, ResultSuccess, decode(t, app.do(t, http.MethodPost, "/api/v1/participants", body, cookie)).Code)
	require.Equal(t, ResultSuccess, decode(t, app.do(t, http.MethodPost, "/api/v1/participants", participantBody("2222222222222222", "Budi", 0, 0), cookie)).Code)

	w = app.do(t, http.MethodGet, "/api/v1/participants/export?category=Normal", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, excel.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Data_Peserta_Posyandu_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{service.ExportSheetName}, f.GetSheetList())
	rows, err := f.GetRows(service.ExportSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, append(append([]string{}, service.ExportHeader...), "Catatan"), rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Ana", rows[1][2])
	assert.Equal(t, "17 May 2000", rows[1][3])
	assert.Equal(t, "19.5", rows[1][8])
	assert.Equal(t, "sehat", rows[1][19])
}

func TestReadBodyJSON_TooLarge(t *testing.T) {
	app := newTestApp()
	cookie := app.signIn(t)

	body := participantBody("1111111111111111", "Ana", 50, 160)
	body["address"] = strings.Repeat("a", maxBodyBytes)
	w := app.do(t, http.MethodPost, "/api/v1/participants", body, cookie)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, service.MsgInvalidInput, decode(t, w).Message)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"login":"ana"}`))
	var out struct{ Login string }
	require.NoError(t, readBodyJSON(req, 15, &out))
	assert.Equal(t, "ana", out.Login)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"login":"ana"}`))
	assert.ErrorIs(t, readBodyJSON(req, 14, &out), errBodyTooLarge)
}

func TestWriteJSON_NoStore(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, Ok("x"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}
