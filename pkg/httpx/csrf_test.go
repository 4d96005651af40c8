package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/stretchr/testify/require"
)

func TestCsrfIssueAndValidate(t *testing.T) {
	guard := &httpx.CsrfGuard{}

	secret, token, err := guard.Issue("")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEmpty(t, token)

	require.NoError(t, guard.Validate(secret, token))
}

func TestCsrfReissueKeepsOldTokensValid(t *testing.T) {
	guard := &httpx.CsrfGuard{}

	secret, token1, err := guard.Issue("")
	require.NoError(t, err)

	// A second tab asks for a token against the same secret.
	sameSecret, token2, err := guard.Issue(secret)
	require.NoError(t, err)
	require.Equal(t, secret, sameSecret)
	require.NotEqual(t, token1, token2)

	require.NoError(t, guard.Validate(secret, token1))
	require.NoError(t, guard.Validate(secret, token2))
}

func TestCsrfValidateFailsClosed(t *testing.T) {
	guard := &httpx.CsrfGuard{}

	secret, token, err := guard.Issue("")
	require.NoError(t, err)

	t.Run("secret missing", func(t *testing.T) {
		require.ErrorIs(t, guard.Validate("", token), httpx.ErrCSRFSecretMissing)
	})

	t.Run("token missing", func(t *testing.T) {
		require.ErrorIs(t, guard.Validate(secret, ""), httpx.ErrCSRFTokenMissing)
	})

	t.Run("token from another secret", func(t *testing.T) {
		_, otherToken, err := guard.Issue("")
		require.NoError(t, err)
		require.ErrorIs(t, guard.Validate(secret, otherToken), httpx.ErrCSRFMismatch)
	})

	t.Run("mangled token", func(t *testing.T) {
		require.ErrorIs(t, guard.Validate(secret, "no-separator"), httpx.ErrCSRFMismatch)
		require.ErrorIs(t, guard.Validate(secret, token+"x"), httpx.ErrCSRFMismatch)
	})
}

func csrfHandler(t *testing.T, guard *httpx.CsrfGuard, sink *metricsx.Sink) http.Handler {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return guard.Middleware(sink)(ok)
}

func TestCsrfMiddleware(t *testing.T) {
	guard := &httpx.CsrfGuard{}
	sink := metricsx.NewSink(0)
	h := csrfHandler(t, guard, sink)

	secret, token, err := guard.Issue("")
	require.NoError(t, err)

	t.Run("safe methods bypass validation", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
			req := httptest.NewRequest(method, "/v1/me", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, method)
		}
	})

	t.Run("unsafe method with valid header token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: httpx.CSRFCookieName, Value: secret})
		req.Header.Set(httpx.CSRFHeaderName, token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unsafe method with form field token passes", func(t *testing.T) {
		form := url.Values{}
		form.Set("_csrf", token)
		req := httptest.NewRequest(http.MethodPost, "/v1/me", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: httpx.CSRFCookieName, Value: secret})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing cookie fails closed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/v1/me", nil)
		req.Header.Set(httpx.CSRFHeaderName, token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing token fails closed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: httpx.CSRFCookieName, Value: secret})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("failures are counted by reason", func(t *testing.T) {
		snap := sink.Snapshot()
		require.GreaterOrEqual(t, snap[`registry_csrf_failures_total{reason="secret_missing"}`], 1.0)
		require.GreaterOrEqual(t, snap[`registry_csrf_failures_total{reason="token_missing"}`], 1.0)
	})
}
