package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client 托管后端客户端（GoTrue 风格认证 + PostgREST 风格数据表）
// Mutations are never retried: a failed call is reported to the user who
// re-triggers the action.
type Client struct {
	httpClient *resty.Client
	anonKey    string
	logger     *zap.Logger
}

// NewClient 创建后端客户端
func NewClient(baseURL, anonKey string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("apikey", anonKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		anonKey:    anonKey,
		logger:     logger,
	}
}

// Error is a failed backend call. Message is safe to show to the user.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// errorBody covers both auth ({"error","error_description"} / {"code","msg"})
// and table ({"code","message","details","hint"}) error shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Err              string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func parseError(resp *resty.Response) error {
	e := &Error{Status: resp.StatusCode()}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.Code = body.ErrorCode
		if e.Code == "" && len(body.Code) > 0 {
			e.Code = strings.Trim(string(body.Code), `"`)
		}
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Err} {
			if m != "" {
				e.Message = m
				break
			}
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}

// bearer returns the token to authorize a call: the user's access token or the anon key.
func (c *Client) bearer(accessToken string) string {
	if accessToken == "" {
		return "Bearer " + c.anonKey
	}
	return "Bearer " + accessToken
}
