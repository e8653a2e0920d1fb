// Package auth holds the authorization capability gating unlock
// operations. The core only needs a boolean decision; implementations are
// pluggable.
package auth

import "crypto/subtle"

type Authorizer interface {
	IsAuthorized(actor, credentials string) bool
}

// StaticAuthorizer checks credentials against a fixed actor→secret table,
// typically loaded from configuration.
type StaticAuthorizer struct {
	secrets map[string]string
}

func NewStaticAuthorizer(secrets map[string]string) *StaticAuthorizer {
	copied := make(map[string]string, len(secrets))
	for actor, secret := range secrets {
		copied[actor] = secret
	}
	return &StaticAuthorizer{secrets: copied}
}

func (a *StaticAuthorizer) IsAuthorized(actor, credentials string) bool {
	secret, ok := a.secrets[actor]
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(credentials)) == 1
}

// AllowAll authorizes everything. Test use only.
type AllowAll struct{}

func (AllowAll) IsAuthorized(string, string) bool { return true }
