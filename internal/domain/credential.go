package domain

import "time"

// VerificationCredential is one outstanding passwordless sign-in secret.
// PK: identifier, SK: secret_hash — the composite key lets several
// credentials coexist for one identifier and makes delete-by-hash a single
// key-addressed operation.
//
// Rows are immutable after creation. The plaintext secret is never stored;
// only its bcrypt hash is. CredentialID exists for log correlation only and
// carries no security meaning.
type VerificationCredential struct {
	Identifier   string `json:"identifier" dynamodbav:"identifier"`
	SecretHash   string `json:"-" dynamodbav:"secret_hash"`
	CredentialID string `json:"credential_id" dynamodbav:"credential_id"`
	ExpiresAt    int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	CreatedAt    int64  `json:"created_at" dynamodbav:"created_at"`
}

// Expired reports whether the credential's lifetime has passed at the given instant.
func (c *VerificationCredential) Expired(now time.Time) bool {
	return c.ExpiresAt < now.Unix()
}
