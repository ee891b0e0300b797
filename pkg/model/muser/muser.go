package muser

// User is the profile record stored at users/{id}. PasswordHash is never
// returned by public API surfaces.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
}
