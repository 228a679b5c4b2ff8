package account

import (
	"encoding/json"
	"time"
)

type User struct {
	ID    string
	Email string
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t Tokens) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Session is the login state of a user, as issued by an Auth provider.
type Session struct {
	Tokens
	User User
}

// Profile is a row of the "profiles" table. It is keyed by user ID.
type Profile struct {
	ID               string          `json:"id"`
	Username         *string         `json:"username"`
	SelectedSyllabus *string         `json:"selected_syllabus"`
	Outcomes         json.RawMessage `json:"outcomes"`
}

// ProfileColumns lists the columns read for the account page.
var ProfileColumns = []string{"id", "username", "selected_syllabus", "outcomes"}
