package mongodb

const (
	OwnersCollection      = "doctors"       // owner (doctor) accounts
	DelegatesCollection   = "secretaries"   // delegate (secretary) accounts
	PatientsCollection    = "patients"      // patient records
	CredentialsCollection = "credentials"   // identity-provider credentials
	SessionsCollection    = "user_sessions" // login sessions
)
