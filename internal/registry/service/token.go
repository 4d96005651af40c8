package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/pkg/jwtx"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

var (
	ErrInvalidAddress = errors.New("invalid_address")
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// TokenService mints and rotates the registry's token pairs. New tokens are
// always signed with the current secrets; the previous secrets only ever
// verify.
type TokenService struct {
	Keys       *jwtx.Keyring
	Sink       *metricsx.Sink
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// AdminAddresses is the configured set of wallet addresses whose
	// tokens carry the admin claim. Lowercased at config load.
	AdminAddresses map[string]bool
}

// Login issues a fresh pair for the given wallet address. Signature-based
// wallet verification sits in front of this service at the edge; here the
// address only needs to be well-formed.
func (s *TokenService) Login(ctx context.Context, address string) (*domain.TokenPair, error) {
	address = strings.TrimSpace(address)
	if !addressPattern.MatchString(address) {
		s.Sink.ValidationError("address", "format")
		return nil, ErrInvalidAddress
	}
	address = strings.ToLower(address)

	slogx.FromContext(ctx).Info("issuing token pair", "address", address)
	return s.issuePair(address)
}

// Refresh verifies a refresh token and rotates it into a new pair. Tokens
// signed with the previous refresh secret are honoured during the rotation
// grace window.
func (s *TokenService) Refresh(ctx context.Context, rawRefresh string) (*domain.TokenPair, error) {
	claims, grace, err := s.Keys.VerifyUse(jwtx.ClassRefresh, jwtx.UseRefresh, rawRefresh)
	if err != nil {
		reason := jwtx.Reason(err)
		s.Sink.JWTError(reason)
		slogx.FromContext(ctx).Info("refresh rejected", "reason", reason)
		return nil, ErrInvalidRefresh
	}
	if grace {
		s.Sink.RotationGrace()
		slogx.FromContext(ctx).Info("refresh accepted via previous signing secret", "sub", claims.Subject)
	}

	return s.issuePair(claims.Address())
}

func (s *TokenService) issuePair(address string) (*domain.TokenPair, error) {
	now := time.Now()
	isAdmin := s.AdminAddresses[address]

	access, err := s.Keys.Sign(jwtx.ClassAccess, jwtx.NewClaims(
		address, jwtx.UseAccess, isAdmin, "", s.AccessTTL, s.Issuer, s.Audience, now))
	if err != nil {
		return nil, err
	}

	refresh, err := s.Keys.Sign(jwtx.ClassRefresh, jwtx.NewClaims(
		address, jwtx.UseRefresh, isAdmin, "", s.RefreshTTL, s.Issuer, s.Audience, now))
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.AccessTTL.Seconds()),
		RefreshExpiresIn: int64(s.RefreshTTL.Seconds()),
	}, nil
}
