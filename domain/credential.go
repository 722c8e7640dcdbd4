package domain

import "time"

// Credential is an identity-provider credential record: the email/password
// identity minted for an owner or delegate. The ID is the provider-issued
// identifier that keys the delegate document.
type Credential struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email,unique"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}
