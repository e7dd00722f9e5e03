package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	// 响应含个人健康数据，不允许缓存
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readBodyJSON decodes r's body into out. An empty body leaves out unchanged;
// a body over maxBytes is errBodyTooLarge rather than a truncated document.
func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > maxBytes {
		return errBodyTooLarge
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// decodeBody reads the JSON body into out, answering 413 or 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	err := readBodyJSON(r, maxBodyBytes, out)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, Fail(service.MsgInvalidInput))
	default:
		writeJSON(w, http.StatusBadRequest, Fail(service.MsgInvalidInput))
	}
	return false
}
