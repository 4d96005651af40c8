package app

import (
	"fmt"
	"log/slog"

	"github.com/skillchain/registry/pkg/jwtx"
)

// buildKeyring assembles the signing keyring from the configured secret
// pairs. Access and refresh tokens get independent classes so a leaked
// refresh secret never validates access tokens.
func buildKeyring(cfg Config, logger *slog.Logger) (*jwtx.Keyring, error) {
	pairs := map[jwtx.TokenClass]jwtx.SecretPair{
		jwtx.ClassAccess: {
			Current:  []byte(cfg.JWTSecret),
			Previous: optionalSecret(cfg.JWTSecretPrevious),
		},
		jwtx.ClassRefresh: {
			Current:  []byte(cfg.RefreshSecret),
			Previous: optionalSecret(cfg.RefreshSecretPrevious),
		},
	}

	keys, err := jwtx.NewKeyring(pairs, jwtx.VerifyOptions{
		Issuer:   cfg.Issuer,
		Audience: []string{cfg.Audience},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build signing keyring: %w", err)
	}

	if cfg.JWTSecretPrevious != "" {
		logger.Info("access-token rotation grace window active, previous secret still verifies")
	}
	if cfg.RefreshSecretPrevious != "" {
		logger.Info("refresh-token rotation grace window active, previous secret still verifies")
	}

	return keys, nil
}

func optionalSecret(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
