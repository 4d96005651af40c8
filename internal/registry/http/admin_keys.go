package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/slogx"
)

type AdminKeysHandler struct {
	AdminKeys *service.AdminKeyService
}

// HandleList godoc
//
//	@Summary		List API Keys Endpoint
//	@Description	List every API key record, newest first. Digests are never returned.
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{array}		APIKeyResponse
//	@Failure		401	{object}	httpx.ErrorBody
//	@Security		APIKeyAuth
//	@Router			/v1/admin/api-keys [get].
func (h *AdminKeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	keys, err := h.AdminKeys.ListKeys(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("key listing failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not list keys")
		return
	}

	out := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = mapAPIKey(k)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleMint godoc
//
//	@Summary		Mint API Key Endpoint
//	@Description	Create a new prefixed API key. The plaintext key appears in this
//	@Description	response and nowhere else.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		MintAPIKeyRequest	true	"Mint request"
//	@Success		201		{object}	MintAPIKeyResponse
//	@Failure		400		{object}	httpx.ErrorBody
//	@Security		APIKeyAuth
//	@Router			/v1/admin/api-keys [post].
func (h *AdminKeysHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MintAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != 0 {
		t := time.Unix(req.ExpiresAt, 0)
		if !t.After(time.Now()) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "expires_at must be in the future")
			return
		}
		expiresAt = &t
	}

	k, plaintext, err := h.AdminKeys.MintKey(ctx, req.Name, req.OwnerAddress, req.Permissions, expiresAt)
	if err != nil {
		if errors.Is(err, service.ErrKeyMalformed) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		slogx.FromContext(ctx).Error("key mint failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not mint key")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, MintAPIKeyResponse{
		Key:       mapAPIKey(k),
		Plaintext: plaintext,
	})
}

// HandleRevoke godoc
//
//	@Summary		Revoke API Key Endpoint
//	@Description	Deactivate a key by id. Revocation propagates to other instances
//	@Description	within the credential cache TTL.
//	@Tags			Admin
//	@Produce		json
//	@Param			id	path	string	true	"Key ID"
//	@Success		204
//	@Failure		404	{object}	httpx.ErrorBody
//	@Security		APIKeyAuth
//	@Router			/v1/admin/api-keys/{id} [delete].
func (h *AdminKeysHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if err := h.AdminKeys.RevokeKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "no key with that id")
			return
		}
		slogx.FromContext(ctx).Error("key revocation failed", "key_id", id, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not revoke key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func mapAPIKey(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:           k.ID,
		Name:         k.Name,
		OwnerAddress: k.OwnerAddress,
		Permissions:  k.Permissions,
		IsActive:     k.IsActive,
		ExpiresAt:    k.ExpiresAt,
		LastUsedAt:   k.LastUsedAt,
		CreatedAt:    k.CreatedAt,
	}
}
