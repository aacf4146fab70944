// Package identity resolves who a connection is: registered member, ephemeral
// guest, or the administrator. It owns credential checks and the display-name
// uniqueness rules; it never touches messages.
package identity

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/hoonex/chat-app/internal/store"
	"github.com/hoonex/chat-app/internal/util"
)

var (
	ErrIdentifierTaken    = errors.New("identifier already registered")
	ErrReservedIdentifier = errors.New("identifier is reserved")
	ErrNicknameTaken      = errors.New("nickname already in use")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and mix letters and digits")
	ErrBadCredentials     = errors.New("invalid identifier or password")
	ErrAdminDisabled      = errors.New("administrator access not configured")
)

// AccountStore defines the storage interface for identity resolution
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (store.Account, error)
	GetAccountByNickname(ctx context.Context, nickname string) (store.Account, error)
	CreateAccount(ctx context.Context, account store.Account) error
	TouchLastLogin(ctx context.Context, id string) error
	DeleteAccount(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store       AccountStore
	adminName   string
	adminSecret string
}

func NewService(accountStore AccountStore, adminName, adminSecret string) *Service {
	return &Service{store: accountStore, adminName: adminName, adminSecret: adminSecret}
}

// Register creates a credentialed account. Identifier and nickname must both
// be free, and reserved identifiers are refused outright.
func (s *Service) Register(ctx context.Context, id, password, nickname string) (store.Account, error) {
	id = strings.TrimSpace(id)
	nickname = strings.TrimSpace(nickname)
	if id == "" || nickname == "" {
		return store.Account{}, errors.New("identifier and nickname are required")
	}
	if isReserved(id, s.adminName) {
		return store.Account{}, ErrReservedIdentifier
	}
	if err := checkPassword(password); err != nil {
		return store.Account{}, err
	}

	if _, err := s.store.GetAccount(ctx, id); err == nil {
		return store.Account{}, ErrIdentifierTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if _, err := s.store.GetAccountByNickname(ctx, nickname); err == nil {
		return store.Account{}, ErrNicknameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, fmt.Errorf("lookup nickname: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.Account{}, fmt.Errorf("hash password: %w", err)
	}

	account := store.Account{
		ID:           id,
		PasswordHash: string(hash),
		Nickname:     nickname,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// SignIn verifies a stored credential. Guests have no credential and cannot
// sign in this way.
func (s *Service) SignIn(ctx context.Context, id, password string) (store.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return store.Account{}, ErrBadCredentials
	}

	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return store.Account{}, ErrBadCredentials
	}
	if account.IsGuest || account.PasswordHash == store.GuestPasswordSentinel {
		return store.Account{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return store.Account{}, ErrBadCredentials
	}

	_ = s.store.TouchLastLogin(ctx, account.ID)
	return account, nil
}

// GuestEnter creates an ephemeral account. Identifier and display name share
// one random suffix so both can be traced to the same entry.
func (s *Service) GuestEnter(ctx context.Context) (store.Account, error) {
	suffix := util.NewSuffix()
	account := store.Account{
		ID:           "guest_" + suffix,
		PasswordHash: store.GuestPasswordSentinel,
		Nickname:     "익명_" + suffix,
		IsGuest:      true,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return store.Account{}, fmt.Errorf("create guest account: %w", err)
	}
	return account, nil
}

// GuestLeave removes the ephemeral account on guest logout. The guest's
// messages survive under their denormalized name.
func (s *Service) GuestLeave(ctx context.Context, accountID string) error {
	if !strings.HasPrefix(accountID, "guest_") {
		return nil
	}
	_, err := s.store.DeleteAccount(ctx, accountID)
	return err
}

// VerifyAdmin checks the reserved admin name token against the out-of-band
// secret. The account store is never consulted.
func (s *Service) VerifyAdmin(name, secret string) error {
	if s.adminSecret == "" {
		return ErrAdminDisabled
	}
	if name != s.adminName {
		return ErrBadCredentials
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.adminSecret)) != 1 {
		return ErrBadCredentials
	}
	return nil
}

// CheckRename enforces display-name uniqueness for a voluntary rename. The
// account's own current nickname never collides with itself.
func (s *Service) CheckRename(ctx context.Context, accountID, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return errors.New("nickname is required")
	}
	existing, err := s.store.GetAccountByNickname(ctx, nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup nickname: %w", err)
	}
	if existing.ID != accountID {
		return ErrNicknameTaken
	}
	return nil
}

func isReserved(id, adminName string) bool {
	return id == store.SystemAuthorID || id == store.AdminAuthorID || id == adminName || strings.HasPrefix(id, "guest_")
}

func checkPassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}
