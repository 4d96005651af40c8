package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/pkg/jwtx"
	"github.com/skillchain/registry/pkg/metricsx"
)

const (
	testIssuer   = "skillchain-registry"
	testAudience = "skillchain-api"
	testAddress  = "0x7a3b1c9d2e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b"
	adminAddress = "0x1111111111111111111111111111111111111111"
)

func newTokenService(t *testing.T) *service.TokenService {
	t.Helper()

	keys, err := jwtx.NewKeyring(map[jwtx.TokenClass]jwtx.SecretPair{
		jwtx.ClassAccess:  {Current: []byte("access-secret-for-tests-only!!")},
		jwtx.ClassRefresh: {Current: []byte("refresh-secret-for-tests-only!")},
	}, jwtx.VerifyOptions{Issuer: testIssuer, Audience: []string{testAudience}})
	require.NoError(t, err)

	return &service.TokenService{
		Keys:           keys,
		Sink:           metricsx.NewSink(0),
		Issuer:         testIssuer,
		Audience:       []string{testAudience},
		AccessTTL:      jwtx.DefaultAccessTokenTTL,
		RefreshTTL:     jwtx.DefaultRefreshTokenTTL,
		AdminAddresses: map[string]bool{adminAddress: true},
	}
}

func TestTokenServiceLogin(t *testing.T) {
	svc := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Login(ctx, testAddress)
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(jwtx.DefaultAccessTokenTTL.Seconds()), pair.ExpiresIn)

	claims, _, err := svc.Keys.VerifyUse(jwtx.ClassAccess, jwtx.UseAccess, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testAddress, claims.Address())
	require.False(t, claims.IsAdmin)

	t.Run("address is normalised to lowercase", func(t *testing.T) {
		pair, err := svc.Login(ctx, "0x7A3B1C9D2E4F5A6B7C8D9E0F1A2B3C4D5E6F7A8B")
		require.NoError(t, err)

		claims, _, err := svc.Keys.VerifyUse(jwtx.ClassAccess, jwtx.UseAccess, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testAddress, claims.Address())
	})

	t.Run("admin address carries the admin claim", func(t *testing.T) {
		pair, err := svc.Login(ctx, adminAddress)
		require.NoError(t, err)

		claims, _, err := svc.Keys.VerifyUse(jwtx.ClassAccess, jwtx.UseAccess, pair.AccessToken)
		require.NoError(t, err)
		require.True(t, claims.IsAdmin)
	})

	t.Run("malformed addresses are rejected", func(t *testing.T) {
		for _, addr := range []string{"", "7a3b1c9d", "0xZZZ", "0x7a3b1c9d2e4f5a6b7c8d9e0f1a2b3c4d5e6f7a"} {
			_, err := svc.Login(ctx, addr)
			require.ErrorIs(t, err, service.ErrInvalidAddress, "address %q", addr)
		}
	})
}

func TestTokenServiceRefresh(t *testing.T) {
	svc := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.Login(ctx, testAddress)
	require.NoError(t, err)

	t.Run("valid refresh rotates the pair", func(t *testing.T) {
		next, err := svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)

		claims, _, err := svc.Keys.VerifyUse(jwtx.ClassAccess, jwtx.UseAccess, next.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testAddress, claims.Address())
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not.a.token")
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})
}

func TestTokenServiceRefreshAfterRotation(t *testing.T) {
	oldRefresh := []byte("previous-refresh-secret-tests!")
	svcBefore := newTokenService(t)

	before, err := jwtx.NewKeyring(map[jwtx.TokenClass]jwtx.SecretPair{
		jwtx.ClassAccess:  {Current: []byte("access-secret-for-tests-only!!")},
		jwtx.ClassRefresh: {Current: oldRefresh},
	}, jwtx.VerifyOptions{Issuer: testIssuer, Audience: []string{testAudience}})
	require.NoError(t, err)
	svcBefore.Keys = before

	pair, err := svcBefore.Login(context.Background(), testAddress)
	require.NoError(t, err)

	// Rotate: old refresh secret moves to previous.
	after, err := jwtx.NewKeyring(map[jwtx.TokenClass]jwtx.SecretPair{
		jwtx.ClassAccess:  {Current: []byte("access-secret-for-tests-only!!")},
		jwtx.ClassRefresh: {Current: []byte("fresh-refresh-secret-tests!!!"), Previous: oldRefresh},
	}, jwtx.VerifyOptions{Issuer: testIssuer, Audience: []string{testAudience}})
	require.NoError(t, err)

	svcAfter := newTokenService(t)
	svcAfter.Keys = after

	next, err := svcAfter.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	// The rotated-out secret never signs: the new refresh token must
	// verify without the grace path.
	_, grace, err := after.VerifyUse(jwtx.ClassRefresh, jwtx.UseRefresh, next.RefreshToken)
	require.NoError(t, err)
	require.False(t, grace)
}
