// Package vault stores session credentials for paired outputs.
//
// Credentials live in an in-memory cache that is always written
// synchronously, backed by one of three persistence tiers selected by
// capability at call time: a host-native secure store if one is wired
// in, an encrypted record store otherwise, or nothing at all (memory
// only, does not survive restart). Read failures in any tier degrade
// to "absent" rather than surfacing an error, so a bad record falls
// through to re-pairing instead of wedging the session.
package vault

import "time"

// Credential is a session token bound to one (clientType, deviceID)
// pair. At most one live credential exists per key; writing an empty
// token is equivalent to deletion.
type Credential struct {
	Token      string     `json:"token"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ClientType string     `json:"clientType"`
	DeviceID   string     `json:"deviceId"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Expired reports whether the credential has an expiry in the past.
// A nil ExpiresAt never expires.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// CredentialKey builds the cache and record key for a credential.
func CredentialKey(clientType, deviceID string) string {
	return clientType + "::" + deviceID
}
