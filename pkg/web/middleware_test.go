package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestIDInjector(t *testing.T) {
	var seen string
	h := RequestIDInjector(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetRequestID(r.Context())
	}))

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(XRequestID, "req-1")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, "req-1", seen)
		assert.Equal(t, "req-1", rr.Header().Get(XRequestID))
	})

	t.Run("generates id", func(t *testing.T) {
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(XRequestID))
	})
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "Panic recovered")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Quantity int `json:"quantity"`
	}
	testCases := []struct {
		name    string
		body    string
		ok      bool
		wantErr string
	}{
		{name: "valid", body: `{"quantity":2}`, ok: true},
		{name: "empty", body: ``, wantErr: "Request body is empty"},
		{name: "unknown fields ignored", body: `{"quantity":2,"note":"x"}`, ok: true},
		{name: "truncated", body: `{"quantity":`, wantErr: "Invalid request payload"},
		{name: "trailing document", body: `{"quantity":2}{"quantity":3}`, wantErr: "single JSON object"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst payload

			ok := DecodeJSON(rr, req, discardLogger(), &dst)

			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, 2, dst.Quantity)
				return
			}
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tc.wantErr)
		})
	}
}

func TestRespondJSON_NilPayload(t *testing.T) {
	rr := httptest.NewRecorder()

	RespondJSON(rr, discardLogger(), http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}
