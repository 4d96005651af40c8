package domain

// AdminIdentity is the authenticated principal behind an X-API-Key request.
type AdminIdentity struct {
	KeyID        string
	KeyName      string
	OwnerAddress string
	Permissions  []string

	// Legacy marks identities produced by the shared-secret fallback.
	// These carry no key record and are slated for removal once every
	// operator has migrated to prefixed keys.
	Legacy bool
}

// Can reports whether the identity holds the named permission. The
// wildcard permission and the legacy fallback grant everything.
func (a AdminIdentity) Can(perm string) bool {
	if a.Legacy {
		return true
	}
	for _, p := range a.Permissions {
		if p == "*" || p == perm {
			return true
		}
	}
	return false
}
