package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reserved author identifiers. Neither ever corresponds to a row in accounts.
const (
	SystemAuthorID = "system"
	AdminAuthorID  = "admin"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, password_hash, nickname, color, is_guest)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.PasswordHash, account.Nickname, account.Color, account.IsGuest)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash, nickname, color, is_guest, last_login, created_at
		FROM accounts
		WHERE id=$1
	`, accountID).Scan(&account.ID, &account.PasswordHash, &account.Nickname, &account.Color, &account.IsGuest, &account.LastLogin, &account.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByNickname(ctx context.Context, nickname string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash, nickname, color, is_guest, last_login, created_at
		FROM accounts
		WHERE nickname=$1
		LIMIT 1
	`, nickname).Scan(&account.ID, &account.PasswordHash, &account.Nickname, &account.Color, &account.IsGuest, &account.LastLogin, &account.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) UpdateAccountNickname(ctx context.Context, accountID, nickname string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET nickname=$2 WHERE id=$1`, accountID, nickname)
	if err != nil {
		return fmt.Errorf("update account nickname: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAccountColor(ctx context.Context, accountID, color string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET color=$2 WHERE id=$1`, accountID, color)
	if err != nil {
		return fmt.Errorf("update account color: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_login=NOW() WHERE id=$1`, accountID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, accountID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id=$1`, accountID)
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete account rows: %w", err)
	}
	return affected > 0, nil
}

// --- messages ---

func (s *PostgresStore) AppendMessage(ctx context.Context, message Message) (Message, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, user_id, name, color, body, related_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at
	`, message.ID, message.UserID, message.Name, message.Color, message.Body, message.RelatedUserID).Scan(&message.Seq, &message.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, color, body, is_deleted, redacted_by, related_user_id, seq, created_at
		FROM messages
		ORDER BY created_at ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Name,
			&item.Color,
			&item.Body,
			&item.IsDeleted,
			&item.RedactedBy,
			&item.RelatedUserID,
			&item.Seq,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var item Message
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, color, body, is_deleted, redacted_by, related_user_id, seq, created_at
		FROM messages
		WHERE id=$1
	`, messageID).Scan(
		&item.ID,
		&item.UserID,
		&item.Name,
		&item.Color,
		&item.Body,
		&item.IsDeleted,
		&item.RedactedBy,
		&item.RelatedUserID,
		&item.Seq,
		&item.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	return item, nil
}

// LastMessageAt returns the timestamp of the author's most recent message,
// the zero time when the author has none on record. Trimmed history counts
// as no record, which only ever relaxes the cooldown.
func (s *PostgresStore) LastMessageAt(ctx context.Context, userID string) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at
		FROM messages
		WHERE user_id=$1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last message at: %w", err)
	}
	return at, nil
}

// MarkMessageSelfDeleted flags the author's own message deleted. The guard on
// is_deleted makes re-flagging a no-op rather than an error.
func (s *PostgresStore) MarkMessageSelfDeleted(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted=TRUE, redacted_by='self'
		WHERE id=$1 AND is_deleted=FALSE
	`, messageID)
	if err != nil {
		return fmt.Errorf("mark message self-deleted: %w", err)
	}
	return nil
}

// MarkMessageModeratorRedacted flags a message deleted on behalf of an
// administrator and overwrites the stored body with the redaction sentinel.
func (s *PostgresStore) MarkMessageModeratorRedacted(ctx context.Context, messageID, sentinelBody string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted=TRUE, redacted_by='moderator', body=$2
		WHERE id=$1
	`, messageID, sentinelBody)
	if err != nil {
		return fmt.Errorf("mark message moderator-redacted: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAllMessages(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return fmt.Errorf("delete all messages: %w", err)
	}
	return nil
}

// TrimMessages deletes everything older than the ceiling-most-recent
// messages. Single statement, so the count-then-delete race of a naive
// read-and-trim loop cannot under- or over-trim.
func (s *PostgresStore) TrimMessages(ctx context.Context, ceiling int) (int, error) {
	if ceiling < 0 {
		ceiling = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id IN (
			SELECT id FROM messages
			ORDER BY created_at DESC, seq DESC
			OFFSET $1
		)
	`, ceiling)
	if err != nil {
		return 0, fmt.Errorf("trim messages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim messages rows: %w", err)
	}
	return int(affected), nil
}

// RewriteAuthorName cascades a nickname change into the denormalized name
// field of every message the account authored.
func (s *PostgresStore) RewriteAuthorName(ctx context.Context, accountID, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET name=$2 WHERE user_id=$1`, accountID, name)
	if err != nil {
		return fmt.Errorf("rewrite author name: %w", err)
	}
	return nil
}

// RewriteEntryNotice replaces the body of the system entry notice recorded
// for the account, keeping it consistent after a rename.
func (s *PostgresStore) RewriteEntryNotice(ctx context.Context, accountID, body string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET body=$2
		WHERE user_id=$3 AND related_user_id=$1
	`, accountID, body, SystemAuthorID)
	if err != nil {
		return fmt.Errorf("rewrite entry notice: %w", err)
	}
	return nil
}

// --- settings ---

func (s *PostgresStore) GetSettings(ctx context.Context) (Settings, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id) VALUES (TRUE)
		ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return Settings{}, fmt.Errorf("ensure settings: %w", err)
	}
	var settings Settings
	err := s.db.QueryRowContext(ctx, `SELECT is_locked, banned_words, cooldown_seconds FROM settings WHERE id=TRUE`).
		Scan(&settings.IsLocked, &settings.BannedWords, &settings.CooldownSeconds)
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, settings Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, is_locked, banned_words, cooldown_seconds)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			is_locked=EXCLUDED.is_locked,
			banned_words=EXCLUDED.banned_words,
			cooldown_seconds=EXCLUDED.cooldown_seconds
	`, settings.IsLocked, settings.BannedWords, settings.CooldownSeconds)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// --- inquiries ---

func (s *PostgresStore) InsertInquiry(ctx context.Context, inquiry Inquiry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inquiries (id, user_id, nickname, message)
		VALUES ($1, $2, $3, $4)
	`, inquiry.ID, inquiry.UserID, inquiry.Nickname, inquiry.Message)
	if err != nil {
		return fmt.Errorf("insert inquiry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInquiries(ctx context.Context) ([]Inquiry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, nickname, message, is_read, created_at
		FROM inquiries
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	items := make([]Inquiry, 0)
	for rows.Next() {
		var item Inquiry
		if err := rows.Scan(&item.ID, &item.UserID, &item.Nickname, &item.Message, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inquiry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inquiries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkInquiryRead(ctx context.Context, inquiryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE inquiries SET is_read=TRUE WHERE id=$1`, inquiryID)
	if err != nil {
		return false, fmt.Errorf("mark inquiry read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark inquiry read rows: %w", err)
	}
	return affected > 0, nil
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, identity Identity, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, nickname, color, is_guest, is_admin, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token_hash) DO UPDATE
			SET user_id=EXCLUDED.user_id, nickname=EXCLUDED.nickname, color=EXCLUDED.color,
				is_guest=EXCLUDED.is_guest, is_admin=EXCLUDED.is_admin,
				expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, identity.UserID, identity.Nickname, identity.Color, identity.IsGuest, identity.IsAdmin, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Identity, error) {
	var identity Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, nickname, color, is_guest, is_admin
		FROM refresh_sessions
		WHERE token_hash=$1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&identity.UserID, &identity.Nickname, &identity.Color, &identity.IsGuest, &identity.IsAdmin)
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
