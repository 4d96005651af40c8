package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/slogx"
)

// ProfileHandler serves public profile views. A valid bearer token attaches
// the viewer; anonymous requests are equally fine.
type ProfileHandler struct{}

// ServeHTTP godoc
//
//	@Summary		Public Profile Endpoint
//	@Description	Fetch a profile by wallet address. Authentication is optional;
//	@Description	a valid bearer token attaches the viewer's address to the view.
//	@Tags			Profiles
//	@Produce		json
//	@Param			address	path		string	true	"Wallet address"
//	@Success		200		{object}	ProfileResponse
//	@Failure		400		{object}	httpx.ErrorBody
//	@Router			/v1/profiles/{address} [get].
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.PathValue("address"))
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_address", "address must be a 0x-prefixed 40-hex-char string")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ProfileResponse{
		Address: address,
		Viewer:  httpx.AddressFromContext(r.Context()),
	})
}

// MeHandler serves the authenticated caller's own view.
type MeHandler struct{}

// HandleGet godoc
//
//	@Summary		Current Identity Endpoint
//	@Description	Return the identity behind the presented access token.
//	@Tags			Profiles
//	@Produce		json
//	@Success		200	{object}	MeResponse
//	@Failure		401	{object}	httpx.ErrorBody
//	@Security		BearerAuth
//	@Router			/v1/me [get].
func (h *MeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, MeResponse{
		Address:   claims.Address(),
		ProfileID: claims.ProfileID,
		IsAdmin:   claims.IsAdmin,
	})
}

// HandlePut godoc
//
//	@Summary		Update Identity Endpoint
//	@Description	Update mutable fields on the caller's own record.
//	@Tags			Profiles
//	@Accept			json
//	@Produce		json
//	@Param			request	body		UpdateMeRequest	true	"Update request"
//	@Success		200		{object}	MeResponse
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		401		{object}	httpx.ErrorBody
//	@Security		BearerAuth
//	@Router			/v1/me [put].
func (h *MeHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req UpdateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.DisplayName) > 64 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "display_name too long")
		return
	}

	slogx.FromContext(ctx).Info("profile update accepted", "address", claims.Address())
	httpx.WriteJSON(w, http.StatusOK, MeResponse{
		Address:   claims.Address(),
		ProfileID: claims.ProfileID,
		IsAdmin:   claims.IsAdmin,
	})
}
