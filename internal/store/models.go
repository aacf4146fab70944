package store

import "time"

// GuestPasswordSentinel is stored in place of a bcrypt hash for guest
// accounts, which carry no credential.
const GuestPasswordSentinel = "guest"

type Account struct {
	ID           string
	PasswordHash string
	Nickname     string
	Color        string
	IsGuest      bool
	LastLogin    time.Time
	CreatedAt    time.Time
}

// Message is a stored chat message. Name and Color are denormalized copies
// of the author's nickname and color as of send time; renames cascade into
// them explicitly rather than through a live reference.
type Message struct {
	ID            string
	UserID        string
	Name          string
	Color         string
	Body          string
	IsDeleted     bool
	RedactedBy    string // "", "self", or "moderator"
	RelatedUserID string // set on system entry notices
	Seq           int64
	CreatedAt     time.Time
}

// Settings is the single mutable configuration record. BannedWords is a
// comma-delimited list of literal substrings. CooldownSeconds is the minimum
// gap between sends per author; zero disables the limit.
type Settings struct {
	IsLocked        bool
	BannedWords     string
	CooldownSeconds int
}

type Inquiry struct {
	ID        string
	UserID    string
	Nickname  string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// Identity is the currency passed between the session stores and the
// service layer. Admin identities never correspond to an account row.
type Identity struct {
	UserID   string
	Nickname string
	Color    string
	IsGuest  bool
	IsAdmin  bool
}
