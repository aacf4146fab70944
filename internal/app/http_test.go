package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hoonex/chat-app/internal/auth"
	"github.com/hoonex/chat-app/internal/store"
)

func newTestHTTPServer(fs *fakeStore) *HTTPServer {
	return NewHTTPServer(newTestService(fs), "*")
}

func issueTestToken(t *testing.T, claims auth.Claims) string {
	t.Helper()
	if claims.Exp == 0 {
		claims.Exp = time.Now().Add(time.Hour).Unix()
	}
	if claims.JTI == "" {
		claims.JTI = "jti_test"
	}
	token, err := auth.IssueToken([]byte(testConfig().TokenSecret), claims)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestFeedRequiresSession(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesForbiddenForMember(t *testing.T) {
	fs := &fakeStore{
		getAccountFn: func(_ context.Context, id string) (store.Account, error) {
			return store.Account{ID: id, Nickname: "민수"}, nil
		},
	}
	server := newTestHTTPServer(fs)
	token := issueTestToken(t, auth.Claims{Sub: "usr_1", Name: "민수"})

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/admin/broadcast"},
		{http.MethodPost, "/api/admin/messages/msg_1/redact"},
		{http.MethodPost, "/api/admin/messages/clear"},
		{http.MethodDelete, "/api/admin/accounts/usr_2"},
		{http.MethodGet, "/api/admin/settings"},
		{http.MethodGet, "/api/admin/inquiries"},
		{http.MethodGet, "/api/admin/search?q=hi"},
	} {
		req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: status = %d, want 403", route.method, route.path, rec.Code)
		}
	}
}

func TestGuestFlowOverHTTP(t *testing.T) {
	accounts := map[string]store.Account{}
	fs := &fakeStore{
		createAccountFn: func(_ context.Context, account store.Account) error {
			accounts[account.ID] = account
			return nil
		},
		getAccountFn: func(_ context.Context, id string) (store.Account, error) {
			account, ok := accounts[id]
			if !ok {
				return store.Account{}, sql.ErrNoRows
			}
			return account, nil
		},
	}
	server := newTestHTTPServer(fs)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/guest", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("guest enter status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			Nickname string `json:"nickname"`
			IsGuest  bool   `json:"isGuest"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.User.IsGuest {
		t.Fatalf("expected guest user, got %+v", payload.User)
	}
	if !strings.HasPrefix(payload.User.ID, "guest_") || !strings.HasPrefix(payload.User.Nickname, "익명_") {
		t.Fatalf("unexpected guest identity %+v", payload.User)
	}
	if strings.TrimPrefix(payload.User.ID, "guest_") != strings.TrimPrefix(payload.User.Nickname, "익명_") {
		t.Fatalf("guest id and nickname must share a suffix: %+v", payload.User)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer "+payload.Token)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("feed status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRedactOverHTTP(t *testing.T) {
	var redacted string
	fs := &fakeStore{
		getMessageFn: func(_ context.Context, id string) (store.Message, error) {
			return store.Message{ID: id, UserID: "usr_1", Body: "bad"}, nil
		},
		markModeratorRedactFn: func(_ context.Context, id, _ string) error {
			redacted = id
			return nil
		},
	}
	server := newTestHTTPServer(fs)
	token := issueTestToken(t, auth.Claims{Sub: store.AdminAuthorID, Name: "admin", Admin: true})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/messages/msg_7/redact", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if redacted != "msg_7" {
		t.Fatalf("redacted %q, want msg_7", redacted)
	}
}

func TestAdminSearchRequiresQuery(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	token := issueTestToken(t, auth.Claims{Sub: store.AdminAuthorID, Name: "admin", Admin: true})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Authenticated {
		t.Fatalf("expected unauthenticated")
	}
}

func TestUpdateSettingsOverHTTP(t *testing.T) {
	var saved store.Settings
	fs := &fakeStore{
		updateSettingsFn: func(_ context.Context, settings store.Settings) error {
			saved = settings
			return nil
		},
	}
	server := newTestHTTPServer(fs)
	token := issueTestToken(t, auth.Claims{Sub: store.AdminAuthorID, Name: "admin", Admin: true})

	body := strings.NewReader(`{"locked":true,"bannedWords":"바보,욕설","cooldownSeconds":5}`)
	req := httptest.NewRequest(http.MethodPut, "/api/admin/settings", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !saved.IsLocked || saved.BannedWords != "바보,욕설" || saved.CooldownSeconds != 5 {
		t.Fatalf("settings not persisted: %+v", saved)
	}
}
