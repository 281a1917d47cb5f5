package models

// Session is the server-side record correlating a live access token to
// activity metadata. Its presence in the store is the actual revocation
// mechanism for access tokens. Sessions are never reused: every login and
// every refresh mints a fresh session id.
type Session struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	SessionID    string `json:"session_id"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	IPAddress    string `json:"ip_address"`
	UserAgent    string `json:"user_agent"`
}
