// Package feed turns the stored message history into a rendering plan for
// one viewer. It is a pure projection: no store access, recomputed in full
// on every refresh.
package feed

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hoonex/chat-app/internal/store"
)

// ModeratorRedactionBody is the sentinel written over a message body by an
// administrator redaction, and the placeholder shown for it.
const ModeratorRedactionBody = "removed by moderator"

// Kind classifies a message for rendering. Resolved once per message; call
// sites switch on the tag instead of re-deriving author comparisons.
type Kind string

const (
	KindSystem    Kind = "system"
	KindBroadcast Kind = "broadcast"
	KindSelf      Kind = "self"
	KindOther     Kind = "other"
)

// RedactionActor identifies who redacted a message.
type RedactionActor string

const (
	RedactedByNone      RedactionActor = ""
	RedactedBySelf      RedactionActor = "self"
	RedactedByModerator RedactionActor = "moderator"
)

// Entry is one line of the rendering plan.
type Entry struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Body       string    `json:"body"`
	Color      string    `json:"color"`
	AvatarSeed string    `json:"avatarSeed,omitempty"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Classify assigns exactly one kind relative to the viewer. Ownership is
// decided by account identifier, never by display name, so two accounts
// sharing a nickname are never conflated.
func Classify(m store.Message, viewerID string) Kind {
	switch {
	case m.UserID == store.SystemAuthorID:
		return KindSystem
	case m.UserID == store.AdminAuthorID:
		return KindBroadcast
	case viewerID != "" && m.UserID == viewerID:
		return KindSelf
	default:
		return KindOther
	}
}

// Actor reports who redacted the message. Rows carry an explicit redacted_by
// field; rows written before that field existed fall back to comparing the
// stored body against the moderator sentinel.
func Actor(m store.Message) RedactionActor {
	if !m.IsDeleted {
		return RedactedByNone
	}
	switch RedactionActor(m.RedactedBy) {
	case RedactedBySelf, RedactedByModerator:
		return RedactionActor(m.RedactedBy)
	}
	if m.Body == ModeratorRedactionBody {
		return RedactedByModerator
	}
	return RedactedBySelf
}

// DisplayBody returns what viewers see in place of the stored body. A
// redacted message never exposes its literal body.
func DisplayBody(m store.Message) string {
	switch Actor(m) {
	case RedactedByModerator:
		return ModeratorRedactionBody
	case RedactedBySelf:
		return fmt.Sprintf("deleted by %s", m.Name)
	default:
		return m.Body
	}
}

// AvatarSeed derives a stable avatar seed from the author identifier, so a
// given author always renders with the same avatar even after the account
// record is gone.
func AvatarSeed(userID string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return fmt.Sprintf("%016x", h.Sum64())
}

var palette = []string{
	"#e06666", "#f6b26b", "#93c47d", "#6fa8dc", "#8e7cc3", "#c27ba0",
}

// DisplayColor prefers the message's denormalized color and falls back to a
// deterministic palette pick for rows stored with the neutral default.
func DisplayColor(m store.Message) string {
	if m.Color != "" && m.Color != "#888888" {
		return m.Color
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.UserID))
	return palette[int(h.Sum32())%len(palette)]
}

// Render produces the full ordered rendering plan for the viewer. Input must
// already be ordered ascending by timestamp (the store's ordering key).
func Render(messages []store.Message, viewerID string) []Entry {
	entries := make([]Entry, 0, len(messages))
	for _, m := range messages {
		kind := Classify(m, viewerID)
		entry := Entry{
			ID:        m.ID,
			Kind:      kind,
			Name:      m.Name,
			Body:      DisplayBody(m),
			Deleted:   m.IsDeleted,
			CreatedAt: m.CreatedAt,
		}
		if kind == KindOther || kind == KindSelf {
			entry.Color = DisplayColor(m)
		}
		if kind == KindOther {
			entry.AvatarSeed = AvatarSeed(m.UserID)
		}
		entries = append(entries, entry)
	}
	return entries
}
