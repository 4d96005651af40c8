package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/slogx"
)

type LoginHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Wallet Login Endpoint
//	@Description	Issue an access/refresh token pair for a wallet address.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Login request"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		400		{object}	httpx.ErrorBody
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	pair, err := h.TokenService.Login(ctx, req.Address)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAddress) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_address", "address must be a 0x-prefixed 40-hex-char string")
			return
		}
		slogx.FromContext(ctx).Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not issue tokens")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

type RefreshHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Token Refresh Endpoint
//	@Description	Rotate a refresh token into a new access/refresh pair.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh request"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		401		{object}	httpx.ErrorBody
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token not accepted")
			return
		}
		slogx.FromContext(ctx).Error("refresh failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not issue tokens")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

type CSRFHandler struct {
	Guard *httpx.CsrfGuard
}

// ServeHTTP godoc
//
//	@Summary		CSRF Token Endpoint
//	@Description	Issue a CSRF token and set the paired secret cookie. An
//	@Description	existing secret cookie is reused so earlier tokens stay valid.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	CSRFResponse
//	@Router			/v1/auth/csrf [get].
func (h *CSRFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	secret, token, err := h.Guard.Issue(h.Guard.SecretFromRequest(r))
	if err != nil {
		slogx.FromContext(r.Context()).Error("csrf issuance failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not issue csrf token")
		return
	}

	h.Guard.SetSecretCookie(w, secret)
	httpx.WriteJSON(w, http.StatusOK, CSRFResponse{Token: token})
}
