package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FinHutch/licencecheck/internal/licence"
	"github.com/FinHutch/licencecheck/internal/store"
)

type stubSigner struct {
	url     string
	err     error
	lastKey string
	lastTTL time.Duration
}

func (s *stubSigner) PresignedGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	s.lastKey = objectKey
	s.lastTTL = ttl
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

type testEnv struct {
	router  chi.Router
	service *licence.Service
	signer  *stubSigner
	clock   *testClock
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := &testClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	svc := licence.NewService(store.NewMemory(), logger, licence.WithClock(clk.now))
	sgn := &stubSigner{url: "https://downloads.example.com/signed"}

	licHandler := NewLicenceHandler(svc, sgn, 2*time.Minute, logger)

	r := chi.NewRouter()
	r.Post("/activate", licHandler.Activate)
	r.Post("/check", licHandler.Check)
	r.Post("/check_hwid", licHandler.CheckHWID)
	r.Get("/get_link/*", licHandler.GetLink)

	return &testEnv{router: r, service: svc, signer: sgn, clock: clk}
}

func (e *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) getLink(t *testing.T, key, code, hwid string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/get_link/" + key + "?licence_code=" + url.QueryEscape(code) + "&hwid=" + url.QueryEscape(hwid)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// issue generates a licence directly through the engine, bypassing HTTP.
func (e *testEnv) issue(t *testing.T) string {
	t.Helper()
	lic, err := e.service.Generate(context.Background())
	require.NoError(t, err)
	return lic.Code
}

func TestActivateEndpoint(t *testing.T) {
	t.Run("activates an issued licence", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issue(t)

		rec := env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t,
			`{"msg":"Licence activated successfully.","licence_code":"`+code+`"}`,
			rec.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t)
		for _, body := range []string{
			`{}`,
			`{"licence_code":"ABC"}`,
			`{"hwid":"GPU-123"}`,
			`{"licence_code":"","hwid":""}`,
		} {
			rec := env.post(t, "/activate", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
			assert.JSONEq(t, `{"msg":"Missing licence_code or hwid"}`, rec.Body.String())
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.post(t, "/activate", `{"licence_code":"00000000-00000000-00000000-00000000","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"msg":"Licence not found"}`, rec.Body.String())
	})

	t.Run("retry on the same machine is idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issue(t)

		first := env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`)
		require.Equal(t, http.StatusOK, first.Code)

		second := env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusOK, second.Code)
	})

	t.Run("second machine is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issue(t)

		require.Equal(t, http.StatusOK,
			env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

		rec := env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-456"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"msg":"Licence already activated on a different machine"}`, rec.Body.String())
	})
}

func TestCheckEndpoint(t *testing.T) {
	env := newTestEnv(t)
	code := env.issue(t)
	require.Equal(t, http.StatusOK,
		env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

	t.Run("valid licence", func(t *testing.T) {
		rec := env.post(t, "/check", `{"licence_code":"`+code+`","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"msg":"Licence valid"}`, rec.Body.String())
	})

	t.Run("wrong machine", func(t *testing.T) {
		rec := env.post(t, "/check", `{"licence_code":"`+code+`","hwid":"GPU-999"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"msg":"HWID mismatch or licence not activated"}`, rec.Body.String())
	})

	t.Run("unknown code", func(t *testing.T) {
		rec := env.post(t, "/check", `{"licence_code":"FFFFFFFF-FFFFFFFF-FFFFFFFF-FFFFFFFF","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"msg":"Licence not found"}`, rec.Body.String())
	})

	t.Run("missing fields surface as not found", func(t *testing.T) {
		rec := env.post(t, "/check", `{}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("not yet activated", func(t *testing.T) {
		fresh := env.issue(t)
		rec := env.post(t, "/check", `{"licence_code":"`+fresh+`","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"msg":"HWID mismatch or licence not activated"}`, rec.Body.String())
	})

	t.Run("expired licence", func(t *testing.T) {
		saved := env.clock.t
		defer func() { env.clock.t = saved }()
		env.clock.t = saved.Add(licence.ValidityWindow + time.Hour)

		rec := env.post(t, "/check", `{"licence_code":"`+code+`","hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"msg":"Licence expired"}`, rec.Body.String())
	})
}

func TestCheckHWIDEndpoint(t *testing.T) {
	env := newTestEnv(t)
	code := env.issue(t)
	require.Equal(t, http.StatusOK,
		env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

	t.Run("bound machine", func(t *testing.T) {
		rec := env.post(t, "/check_hwid", `{"hwid":"GPU-123"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"msg":"Licence valid"}`, rec.Body.String())
	})

	t.Run("unknown machine", func(t *testing.T) {
		rec := env.post(t, "/check_hwid", `{"hwid":"GPU-999"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing hwid", func(t *testing.T) {
		rec := env.post(t, "/check_hwid", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"msg":"Missing HWID"}`, rec.Body.String())
	})
}

func TestGetLinkEndpoint(t *testing.T) {
	t.Run("query parameters sign the requested object", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issue(t)
		require.Equal(t, http.StatusOK,
			env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

		rec := env.getLink(t, "builds/app-1.2.3.zip", code, "GPU-123")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"url":"https://downloads.example.com/signed"}`, rec.Body.String())
		assert.Equal(t, "builds/app-1.2.3.zip", env.signer.lastKey)
		assert.Equal(t, 2*time.Minute, env.signer.lastTTL)
	})

	t.Run("json body is accepted as a fallback", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issue(t)
		require.Equal(t, http.StatusOK,
			env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

		req := httptest.NewRequest(http.MethodGet, "/get_link/builds/app.zip",
			strings.NewReader(`{"licence_code":"`+code+`","hwid":"GPU-123"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong machine in the query is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issue(t)
		require.Equal(t, http.StatusOK,
			env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

		rec := env.getLink(t, "builds/app.zip", code, "GPU-999")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, env.signer.lastKey)
	})

	t.Run("invalid licence never reaches the signer", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.getLink(t, "builds/app.zip",
			"FFFFFFFF-FFFFFFFF-FFFFFFFF-FFFFFFFF", "GPU-123")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, env.signer.lastKey)
	})

	t.Run("missing credentials surface as not found", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/get_link/builds/app.zip", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("signer failure maps to 500", func(t *testing.T) {
		env := newTestEnv(t)
		env.signer.err = errors.New("bucket unreachable")
		code := env.issue(t)
		require.Equal(t, http.StatusOK,
			env.post(t, "/activate", `{"licence_code":"`+code+`","hwid":"GPU-123"}`).Code)

		rec := env.getLink(t, "builds/app.zip", code, "GPU-123")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"msg":"Could not generate link"}`, rec.Body.String())
	})
}

func TestMapLicenceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{licence.ErrBadRequest, http.StatusBadRequest, "Missing licence_code or hwid"},
		{licence.ErrNotFound, http.StatusNotFound, "Licence not found"},
		{licence.ErrNotActivated, http.StatusForbidden, "HWID mismatch or licence not activated"},
		{licence.ErrExpired, http.StatusForbidden, "Licence expired"},
		{licence.ErrHWIDConflict, http.StatusForbidden, "Licence already activated on a different machine"},
		{licence.ErrDuplicateCode, http.StatusInternalServerError, "Could not issue licence"},
		{licence.ErrLinkGeneration, http.StatusInternalServerError, "Could not generate link"},
		{licence.ErrUnavailable, http.StatusServiceUnavailable, "Service temporarily unavailable"},
		{errors.New("something else"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			resp, ok := MapLicenceError(tt.err).(*ErrResponse)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, resp.HTTPStatusCode)
			assert.Equal(t, tt.wantMsg, resp.Msg)
		})
	}
}

// Wrapped errors must still map through the sentinel chain.
func TestMapLicenceErrorWrapped(t *testing.T) {
	wrapped := errors.Join(errors.New("query licences"), licence.ErrUnavailable)
	resp, ok := MapLicenceError(wrapped).(*ErrResponse)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, resp.HTTPStatusCode)
}

// The error body serializes to the bare {"msg": ...} envelope; internal
// error detail and status code stay out of the JSON.
func TestErrResponseBody(t *testing.T) {
	resp := MapLicenceError(licence.ErrExpired).(*ErrResponse)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, map[string]any{"msg": "Licence expired"}, body)
}
