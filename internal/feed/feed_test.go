package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/hoonex/chat-app/internal/store"
)

func msg(id, userID, name, body string) store.Message {
	return store.Message{ID: id, UserID: userID, Name: name, Body: body, CreatedAt: time.Now()}
}

func TestClassifyByIdentifierNotName(t *testing.T) {
	viewer := "user-a"
	// Same display name on both, different identifiers.
	own := msg("m1", "user-a", "철수", "hi")
	other := msg("m2", "user-b", "철수", "hi")

	if got := Classify(own, viewer); got != KindSelf {
		t.Fatalf("Classify(own) = %q, want %q", got, KindSelf)
	}
	if got := Classify(other, viewer); got != KindOther {
		t.Fatalf("Classify(other) = %q, want %q", got, KindOther)
	}
}

func TestClassifyReservedAuthors(t *testing.T) {
	if got := Classify(msg("m1", store.SystemAuthorID, "system", "x entered"), "user-a"); got != KindSystem {
		t.Fatalf("system notice classified as %q", got)
	}
	if got := Classify(msg("m2", store.AdminAuthorID, "admin", "notice"), "user-a"); got != KindBroadcast {
		t.Fatalf("admin broadcast classified as %q", got)
	}
}

func TestDisplayBodySelfDeletion(t *testing.T) {
	m := msg("m1", "user-a", "철수", "original")
	m.IsDeleted = true
	m.RedactedBy = "self"

	got := DisplayBody(m)
	if got != "deleted by 철수" {
		t.Fatalf("DisplayBody() = %q", got)
	}
	if strings.Contains(got, "original") {
		t.Fatal("redacted body leaked the original text")
	}
}

func TestDisplayBodyModeratorRedaction(t *testing.T) {
	m := msg("m1", "user-u", "영희", ModeratorRedactionBody)
	m.IsDeleted = true
	m.RedactedBy = "moderator"

	if got := DisplayBody(m); got != ModeratorRedactionBody {
		t.Fatalf("DisplayBody() = %q, want moderator placeholder", got)
	}
}

func TestActorFallbackWithoutExplicitField(t *testing.T) {
	// Legacy rows carry no redacted_by; the sentinel comparison decides.
	byAdmin := msg("m1", "user-u", "영희", ModeratorRedactionBody)
	byAdmin.IsDeleted = true
	if got := Actor(byAdmin); got != RedactedByModerator {
		t.Fatalf("Actor(sentinel body) = %q, want moderator", got)
	}

	bySelf := msg("m2", "user-u", "영희", "whatever")
	bySelf.IsDeleted = true
	if got := Actor(bySelf); got != RedactedBySelf {
		t.Fatalf("Actor(non-sentinel body) = %q, want self", got)
	}
}

func TestActorNotDeleted(t *testing.T) {
	if got := Actor(msg("m1", "user-a", "철수", "hi")); got != RedactedByNone {
		t.Fatalf("Actor(live message) = %q, want none", got)
	}
}

func TestAvatarSeedDeterministic(t *testing.T) {
	a := AvatarSeed("guest_abc123")
	b := AvatarSeed("guest_abc123")
	c := AvatarSeed("guest_zzz999")
	if a != b {
		t.Fatalf("AvatarSeed not stable: %q != %q", a, b)
	}
	if a == c {
		t.Fatal("different identifiers produced the same seed")
	}
}

func TestRenderGuestScenario(t *testing.T) {
	history := []store.Message{
		msg("m1", "guest_abc123", "익명_abc123", "hello"),
	}

	own := Render(history, "guest_abc123")
	if len(own) != 1 || own[0].Kind != KindSelf {
		t.Fatalf("author view: %+v", own)
	}

	theirs := Render(history, "user-other")
	if len(theirs) != 1 || theirs[0].Kind != KindOther {
		t.Fatalf("second viewer: %+v", theirs)
	}
	if theirs[0].Name != "익명_abc123" {
		t.Fatalf("denormalized name lost: %q", theirs[0].Name)
	}
	if theirs[0].AvatarSeed != AvatarSeed("guest_abc123") {
		t.Fatal("avatar seed not derived from author identifier")
	}
}

func TestRenderDeletedAuthorUsesSnapshot(t *testing.T) {
	// Author account may be gone; rendering only needs the denormalized copy.
	m := msg("m1", "banned-user", "옛날닉", "still here")
	m.Color = "#e06666"
	entries := Render([]store.Message{m}, "viewer")
	if entries[0].Name != "옛날닉" || entries[0].Color != "#e06666" {
		t.Fatalf("snapshot not used: %+v", entries[0])
	}
}

func TestRenderSystemNoticeHasNoAvatar(t *testing.T) {
	entries := Render([]store.Message{msg("m1", store.SystemAuthorID, "system", "철수님이 입장했습니다.")}, "viewer")
	if entries[0].AvatarSeed != "" || entries[0].Color != "" {
		t.Fatalf("system notice should carry no avatar or color: %+v", entries[0])
	}
}
