package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hoonex/chat-app/internal/auth"
	"github.com/hoonex/chat-app/internal/config"
	"github.com/hoonex/chat-app/internal/feed"
	"github.com/hoonex/chat-app/internal/identity"
	"github.com/hoonex/chat-app/internal/ratelimit"
	"github.com/hoonex/chat-app/internal/rbac"
	"github.com/hoonex/chat-app/internal/search"
	"github.com/hoonex/chat-app/internal/store"
	"github.com/hoonex/chat-app/internal/util"
	"github.com/hoonex/chat-app/internal/wordfilter"
)

// Session is the resolved caller for one request.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Nickname     string
	Color        string
	Role         rbac.Role
	IsGuest      bool
	IsAdmin      bool
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is everything the service needs from Postgres.
type dataStore interface {
	CreateAccount(ctx context.Context, account store.Account) error
	GetAccount(ctx context.Context, accountID string) (store.Account, error)
	GetAccountByNickname(ctx context.Context, nickname string) (store.Account, error)
	UpdateAccountNickname(ctx context.Context, accountID, nickname string) error
	UpdateAccountColor(ctx context.Context, accountID, color string) error
	TouchLastLogin(ctx context.Context, accountID string) error
	DeleteAccount(ctx context.Context, accountID string) (bool, error)

	AppendMessage(ctx context.Context, message store.Message) (store.Message, error)
	ListMessages(ctx context.Context) ([]store.Message, error)
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
	LastMessageAt(ctx context.Context, userID string) (time.Time, error)
	MarkMessageSelfDeleted(ctx context.Context, messageID string) error
	MarkMessageModeratorRedacted(ctx context.Context, messageID, sentinelBody string) error
	DeleteAllMessages(ctx context.Context) error
	TrimMessages(ctx context.Context, ceiling int) (int, error)
	RewriteAuthorName(ctx context.Context, accountID, name string) error
	RewriteEntryNotice(ctx context.Context, accountID, body string) error

	GetSettings(ctx context.Context) (store.Settings, error)
	UpdateSettings(ctx context.Context, settings store.Settings) error

	InsertInquiry(ctx context.Context, inquiry store.Inquiry) error
	ListInquiries(ctx context.Context) ([]store.Inquiry, error)
	MarkInquiryRead(ctx context.Context, inquiryID string) (bool, error)

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. Redis when configured, Postgres
// otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, identity store.Identity, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Identity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	identity *identity.Service
	search   *search.Service
}

func New(cfg config.Config, pg *store.PostgresStore, ident *identity.Service, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    pg,
		sessions: pg,
		identity: ident,
		search:   searchSvc,
	}
}

func NewWithSessionStore(cfg config.Config, pg *store.PostgresStore, sessions sessionStore, ident *identity.Service, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    pg,
		sessions: sessions,
		identity: ident,
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// entryNoticeBody is the system announcement posted when someone joins. The
// rename cascade regenerates it with the same template.
func entryNoticeBody(nickname string) string {
	return fmt.Sprintf("%s님이 입장했습니다.", nickname)
}

func (s *Service) appendEntryNotice(ctx context.Context, account store.Account) {
	_, err := s.store.AppendMessage(ctx, store.Message{
		ID:            util.NewID("msg"),
		UserID:        store.SystemAuthorID,
		Name:          "system",
		Body:          entryNoticeBody(account.Nickname),
		RelatedUserID: account.ID,
	})
	if err != nil {
		log.Printf("entry notice for %s not recorded: %v", account.ID, err)
	}
}

func (s *Service) SignUp(ctx context.Context, id, password, nickname string) (Session, error) {
	account, err := s.identity.Register(ctx, id, password, nickname)
	if err != nil {
		return Session{}, err
	}
	s.appendEntryNotice(ctx, account)
	return s.issueSession(ctx, identityForAccount(account))
}

func (s *Service) SignIn(ctx context.Context, id, password string) (Session, error) {
	account, err := s.identity.SignIn(ctx, id, password)
	if err != nil {
		return Session{}, err
	}
	s.appendEntryNotice(ctx, account)
	return s.issueSession(ctx, identityForAccount(account))
}

func (s *Service) GuestEnter(ctx context.Context) (Session, error) {
	account, err := s.identity.GuestEnter(ctx)
	if err != nil {
		return Session{}, err
	}
	s.appendEntryNotice(ctx, account)
	return s.issueSession(ctx, identityForAccount(account))
}

func (s *Service) AdminEnter(ctx context.Context, name, secret string) (Session, error) {
	if err := s.identity.VerifyAdmin(name, secret); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, store.Identity{
		UserID:   store.AdminAuthorID,
		Nickname: s.cfg.AdminName,
		IsAdmin:  true,
	})
}

func identityForAccount(account store.Account) store.Identity {
	return store.Identity{
		UserID:   account.ID,
		Nickname: account.Nickname,
		Color:    account.Color,
		IsGuest:  account.IsGuest,
	}
}

func roleFor(id store.Identity) rbac.Role {
	switch {
	case id.IsAdmin:
		return rbac.RoleAdmin
	case id.IsGuest:
		return rbac.RoleGuest
	default:
		return rbac.RoleMember
	}
}

func (s *Service) issueSession(ctx context.Context, id store.Identity) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   id.UserID,
		Name:  id.Nickname,
		Guest: id.IsGuest,
		Admin: id.IsAdmin,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), id, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       id.UserID,
		Nickname:     id.Nickname,
		Color:        id.Color,
		Role:         roleFor(id),
		IsGuest:      id.IsGuest,
		IsAdmin:      id.IsAdmin,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	id, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)

	if !id.IsAdmin {
		account, err := s.store.GetAccount(ctx, id.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Session{}, domainError(http.StatusUnauthorized, "SESSION_TERMINATED", "Account no longer exists", nil)
			}
			return Session{}, err
		}
		id = identityForAccount(account)
	}
	return s.issueSession(ctx, id)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	id := store.Identity{
		UserID:   claims.Sub,
		Nickname: claims.Name,
		IsGuest:  claims.Guest,
		IsAdmin:  claims.Admin,
	}
	if !claims.Admin {
		// Names and colors can change behind a live token. The account row,
		// not the claim set, is authoritative. A missing row means the
		// account was banned and the session dies with it.
		account, err := s.store.GetAccount(ctx, claims.Sub)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Session{}, domainError(http.StatusUnauthorized, "SESSION_TERMINATED", "Account no longer exists", nil)
			}
			return Session{}, err
		}
		id = identityForAccount(account)
	}

	return Session{
		Token:     token,
		UserID:    id.UserID,
		Nickname:  id.Nickname,
		Color:     id.Color,
		Role:      roleFor(id),
		IsGuest:   id.IsGuest,
		IsAdmin:   id.IsAdmin,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes both tokens. Guests evaporate entirely: their account row is
// deleted so the identifier frees up, while their messages stay in history.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
		return err
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	if session.IsGuest {
		return s.identity.GuestLeave(ctx, session.UserID)
	}
	return nil
}

// FeedResponse is everything a client needs to paint the room.
type FeedResponse struct {
	Messages []feed.Entry `json:"messages"`
	Locked   bool         `json:"locked"`
}

func (s *Service) Feed(ctx context.Context, session Session) (FeedResponse, error) {
	messages, err := s.store.ListMessages(ctx)
	if err != nil {
		return FeedResponse{}, err
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return FeedResponse{}, err
	}
	entries := feed.Render(messages, session.UserID)
	if entries == nil {
		entries = []feed.Entry{}
	}
	return FeedResponse{Messages: entries, Locked: settings.IsLocked}, nil
}

func (s *Service) Send(ctx context.Context, session Session, body string) (store.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Message body is required", nil)
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return store.Message{}, err
	}
	if settings.IsLocked && !session.IsAdmin {
		return store.Message{}, domainError(http.StatusLocked, "CHAT_LOCKED", "Chat is locked by the administrator", nil)
	}
	if settings.CooldownSeconds > 0 && !session.IsAdmin {
		lastSent, err := s.store.LastMessageAt(ctx, session.UserID)
		if err != nil {
			return store.Message{}, err
		}
		cooldown := time.Duration(settings.CooldownSeconds) * time.Second
		if remaining := ratelimit.Remaining(lastSent, time.Now(), cooldown); remaining > 0 {
			return store.Message{}, domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Sending too fast",
				map[string]any{"retryAfterSeconds": ratelimit.RetryAfterSeconds(remaining)})
		}
	}

	name := session.Nickname
	color := session.Color
	if !session.IsAdmin {
		// Re-read the account so a rename that landed after token issue is
		// reflected in the denormalized snapshot.
		account, err := s.store.GetAccount(ctx, session.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Message{}, domainError(http.StatusUnauthorized, "SESSION_TERMINATED", "Account no longer exists", nil)
			}
			return store.Message{}, err
		}
		name = account.Nickname
		color = account.Color
		body = wordfilter.Mask(body, wordfilter.Parse(settings.BannedWords))
	}

	message, err := s.store.AppendMessage(ctx, store.Message{
		ID:     util.NewID("msg"),
		UserID: session.UserID,
		Name:   name,
		Color:  color,
		Body:   body,
	})
	if err != nil {
		return store.Message{}, err
	}

	if _, err := s.store.TrimMessages(ctx, s.cfg.RetentionCeiling); err != nil {
		log.Printf("retention trim failed: %v", err)
	}
	if s.search != nil {
		s.search.IndexMessage(search.MessageRecord{ID: message.ID, Name: message.Name, Body: message.Body})
	}
	return message, nil
}

// SelfDelete soft-deletes the caller's own message. Repeat calls are no-ops,
// and a prior moderator redaction always wins.
func (s *Service) SelfDelete(ctx context.Context, session Session, messageID string) error {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.UserID == store.SystemAuthorID || message.UserID == store.AdminAuthorID {
		// The admin session's id equals a broadcast's author id, so the
		// ownership check alone would mark a broadcast redacted_by='self'.
		// Broadcasts are removed through the redact endpoint only.
		return domainError(http.StatusForbidden, "FORBIDDEN", "Broadcasts and notices cannot be self-deleted", nil)
	}
	if message.UserID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author can delete a message", nil)
	}
	if message.IsDeleted {
		return nil
	}
	if err := s.store.MarkMessageSelfDeleted(ctx, messageID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteMessage(messageID)
	}
	return nil
}

func (s *Service) AdminRedact(ctx context.Context, messageID string) error {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.UserID == store.SystemAuthorID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "System notices cannot be redacted", nil)
	}
	if err := s.store.MarkMessageModeratorRedacted(ctx, messageID, feed.ModeratorRedactionBody); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteMessage(messageID)
	}
	return nil
}

func (s *Service) ClearMessages(ctx context.Context) error {
	if err := s.store.DeleteAllMessages(ctx); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteAll()
	}
	return nil
}

// Broadcast posts as the administrator. The forbidden-word filter does not
// apply to broadcasts.
func (s *Service) Broadcast(ctx context.Context, body string) (store.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Message body is required", nil)
	}
	message, err := s.store.AppendMessage(ctx, store.Message{
		ID:     util.NewID("msg"),
		UserID: store.AdminAuthorID,
		Name:   s.cfg.AdminName,
		Body:   body,
	})
	if err != nil {
		return store.Message{}, err
	}
	if _, err := s.store.TrimMessages(ctx, s.cfg.RetentionCeiling); err != nil {
		log.Printf("retention trim failed: %v", err)
	}
	if s.search != nil {
		s.search.IndexMessage(search.MessageRecord{ID: message.ID, Name: message.Name, Body: message.Body})
	}
	return message, nil
}

// UpdateProfile changes the caller's nickname and color, then rewrites every
// historical byline and the entry notice so the feed reads as if the account
// always had the new name.
func (s *Service) UpdateProfile(ctx context.Context, session Session, nickname, color string) error {
	if session.IsAdmin {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "The administrator has no profile", nil)
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" && color == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Nothing to update", nil)
	}
	if nickname != "" {
		if err := s.identity.CheckRename(ctx, session.UserID, nickname); err != nil {
			return err
		}
		if err := s.store.UpdateAccountNickname(ctx, session.UserID, nickname); err != nil {
			return err
		}
		if err := s.cascadeRename(ctx, session.UserID, nickname); err != nil {
			return err
		}
	}
	if color != "" {
		if err := s.store.UpdateAccountColor(ctx, session.UserID, color); err != nil {
			return err
		}
	}
	return nil
}

// ForceRename is the moderator override. It skips the collision check on
// purpose: duplicate display names are tolerated, identity rides on the
// account identifier.
func (s *Service) ForceRename(ctx context.Context, accountID, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Nickname is required", nil)
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if err := s.store.UpdateAccountNickname(ctx, accountID, nickname); err != nil {
		return err
	}
	return s.cascadeRename(ctx, accountID, nickname)
}

func (s *Service) cascadeRename(ctx context.Context, accountID, nickname string) error {
	if err := s.store.RewriteAuthorName(ctx, accountID, nickname); err != nil {
		return err
	}
	return s.store.RewriteEntryNotice(ctx, accountID, entryNoticeBody(nickname))
}

// BanAccount removes the account outright. Messages keep their denormalized
// name snapshot, so history stays readable after the ban.
func (s *Service) BanAccount(ctx context.Context, accountID string) error {
	affected, err := s.store.DeleteAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !affected {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Account not found", nil)
	}
	return nil
}

func (s *Service) Settings(ctx context.Context) (store.Settings, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, settings store.Settings) error {
	return s.store.UpdateSettings(ctx, settings)
}

func (s *Service) SubmitInquiry(ctx context.Context, session Session, message string) (store.Inquiry, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return store.Inquiry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Inquiry message is required", nil)
	}
	inquiry := store.Inquiry{
		ID:       util.NewID("inq"),
		UserID:   session.UserID,
		Nickname: session.Nickname,
		Message:  message,
	}
	if err := s.store.InsertInquiry(ctx, inquiry); err != nil {
		return store.Inquiry{}, err
	}
	return inquiry, nil
}

func (s *Service) Inquiries(ctx context.Context) ([]store.Inquiry, error) {
	inquiries, err := s.store.ListInquiries(ctx)
	if err != nil {
		return nil, err
	}
	if inquiries == nil {
		inquiries = []store.Inquiry{}
	}
	return inquiries, nil
}

func (s *Service) MarkInquiryRead(ctx context.Context, inquiryID string) error {
	affected, err := s.store.MarkInquiryRead(ctx, inquiryID)
	if err != nil {
		return err
	}
	if !affected {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Inquiry not found", nil)
	}
	return nil
}

func (s *Service) SearchMessages(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
