package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manny1440/DreamScapers/internal/auth"
	"github.com/Manny1440/DreamScapers/internal/imagedata"
	"github.com/Manny1440/DreamScapers/internal/middleware"
)

type httpEnv struct {
	*env
	handler http.Handler
	tokens  *auth.TokenManager
}

func setupHTTP(t *testing.T, opts Options) *httpEnv {
	t.Helper()
	e := setup(t, opts, nil)
	tokens := auth.NewTokenManager("identity-secret-32-chars-long!!!", time.Hour)
	h := NewHandler(e.svc, 1<<20)
	chain := middleware.RequestID(auth.Optional(tokens)(http.HandlerFunc(h.Generate)))
	return &httpEnv{env: e, handler: chain, tokens: tokens}
}

func (e *httpEnv) do(t *testing.T, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate", &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return rec, out
}

func wireRequest() map[string]string {
	return map[string]string{
		"email":         "a@x.com",
		"prompt":        "Add a stone patio",
		"styleModifier": "Modern minimalist garden",
		"imageBase64":   imagedata.Encode(inputImage),
	}
}

func TestHandler_Success(t *testing.T) {
	e := setupHTTP(t, Options{})

	rec, body := e.do(t, wireRequest(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, imagedata.Encode(afterImage), body["image"])
	assert.Equal(t, "image/png", body["mimeType"])
	assert.Equal(t, float64(1), body["used"])
	assert.Equal(t, float64(50), body["limit"])
	assert.Equal(t, "2024-W05", body["weekKey"])
	assert.NotContains(t, body, "error")
}

func TestHandler_QuotaExceeded(t *testing.T) {
	e := setupHTTP(t, Options{})
	require.NoError(t, e.mr.Set(counterKey, "50"))

	rec, body := e.do(t, wireRequest(), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "quota_exceeded", body["kind"])
	assert.Equal(t, float64(50), body["limit"])
	assert.Equal(t, float64(50), body["used"])
	assert.Contains(t, body["error"], "Weekly limit reached (50/50)")

	// Wednesday 10:00 to Monday 00:00 is 4 days 14 hours.
	assert.Equal(t, "396000", rec.Header().Get("Retry-After"))
}

func TestHandler_InvalidRequests(t *testing.T) {
	cases := map[string]any{
		"not json":      "{nope",
		"array body":    `[1,2,3]`,
		"missing email": map[string]string{"prompt": "x", "imageBase64": imagedata.Encode(inputImage)},
		"bad image":     map[string]string{"email": "a@x.com", "prompt": "x", "imageBase64": "AAAA"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			e := setupHTTP(t, Options{})

			rec, out := e.do(t, body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", out["kind"])
			assert.NotContains(t, out, "limit")
			assert.False(t, e.mr.Exists(counterKey))
		})
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	e := setupHTTP(t, Options{})
	req := wireRequest()
	req["imageBase64"] = "data:image/png;base64," + strings.Repeat("A", 2<<20)

	rec, out := e.do(t, req, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is too large", out["error"])
}

func TestHandler_UpstreamStatuses(t *testing.T) {
	t.Run("upstream error is 502", func(t *testing.T) {
		e := setupHTTP(t, Options{})
		e.model.fn = returning(nil, errors.New("boom"))

		rec, out := e.do(t, wireRequest(), nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "upstream_error", out["kind"])
		assert.Equal(t, float64(1), out["used"])
	})

	t.Run("timeout is 504", func(t *testing.T) {
		e := setupHTTP(t, Options{Timeout: 10 * time.Millisecond})
		e.model.fn = func(ctx context.Context, _ Instruction) (*Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		rec, out := e.do(t, wireRequest(), nil)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, "upstream_error", out["kind"])
	})

	t.Run("no image is 502", func(t *testing.T) {
		e := setupHTTP(t, Options{})
		e.model.fn = returning(&Response{}, nil)

		rec, out := e.do(t, wireRequest(), nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "no_image_produced", out["kind"])
		assert.Equal(t, float64(1), out["used"])
		assert.Equal(t, float64(50), out["limit"])
	})
}

func TestHandler_MissingCredentialIs500(t *testing.T) {
	e := setupHTTP(t, Options{})
	e.model.fn = returning(nil, ErrMissingCredential)

	rec, out := e.do(t, wireRequest(), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "missing_credential", out["kind"])
}

func TestHandler_TokenIdentityOverridesBody(t *testing.T) {
	e := setupHTTP(t, Options{})
	token, err := e.tokens.Sign("owner@x.com")
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	rec, _ := e.do(t, wireRequest(), header)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, e.mr.Exists("quota:2024-W05:owner@x.com"))
	assert.False(t, e.mr.Exists(counterKey))
}

func TestHandler_RejectsBadToken(t *testing.T) {
	e := setupHTTP(t, Options{})

	header := http.Header{"Authorization": []string{"Bearer forged"}}
	rec, out := e.do(t, wireRequest(), header)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", out["kind"])
	assert.Equal(t, 0, e.model.Calls())
}

func TestToAppError_ForeignError(t *testing.T) {
	appErr := ToAppError(errors.New("raw"), week5)
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	assert.Equal(t, "internal", appErr.Kind)
}

func TestToAppError_CanceledCaller(t *testing.T) {
	appErr := ToAppError(canceled(context.Canceled), week5)
	assert.Equal(t, statusClientClosedRequest, appErr.Code)
	assert.Equal(t, "canceled", appErr.Kind)
	assert.Nil(t, appErr.Limit)
}
