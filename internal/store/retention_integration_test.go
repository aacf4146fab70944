package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Exercises the single-statement trim against a real database: after the
// 51st message the single oldest row by (created_at, seq) is evicted and
// exactly the 50 most recent survive.
func TestTrimMessagesEvictsOldest(t *testing.T) {
	db := openTestDatabase(t)
	defer db.Close()
	ctx := context.Background()
	pg := NewPostgresStore(db)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 51; i++ {
		insertTestMessage(t, db, fmt.Sprintf("msg_%03d", i), base.Add(time.Duration(i)*time.Second))
	}

	removed, err := pg.TrimMessages(ctx, 50)
	if err != nil {
		t.Fatalf("TrimMessages: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d rows, want exactly the oldest one", removed)
	}

	messages, err := pg.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 50 {
		t.Fatalf("%d messages survive, want 50", len(messages))
	}
	if messages[0].ID != "msg_001" {
		t.Fatalf("oldest surviving message is %s, want msg_001 (msg_000 evicted)", messages[0].ID)
	}
	if messages[len(messages)-1].ID != "msg_050" {
		t.Fatalf("newest surviving message is %s, want msg_050", messages[len(messages)-1].ID)
	}

	// At or under the ceiling the trim must not touch anything.
	removed, err = pg.TrimMessages(ctx, 50)
	if err != nil {
		t.Fatalf("TrimMessages at ceiling: %v", err)
	}
	if removed != 0 {
		t.Fatalf("trim at ceiling removed %d rows, want 0", removed)
	}
}

// Rows sharing a timestamp fall back to insertion order via seq, so the trim
// still evicts deterministically.
func TestTrimMessagesBreaksTimestampTiesBySeq(t *testing.T) {
	db := openTestDatabase(t)
	defer db.Close()
	ctx := context.Background()
	pg := NewPostgresStore(db)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		insertTestMessage(t, db, fmt.Sprintf("msg_%03d", i), at)
	}

	removed, err := pg.TrimMessages(ctx, 3)
	if err != nil {
		t.Fatalf("TrimMessages: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d rows, want 1", removed)
	}

	messages, err := pg.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 3 || messages[0].ID != "msg_001" {
		t.Fatalf("expected msg_000 evicted by seq tiebreak, survivors start at %s", messages[0].ID)
	}
}

func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CLASSCHAT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CLASSCHAT_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func insertTestMessage(t *testing.T, db *sql.DB, id string, createdAt time.Time) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO messages (id, user_id, name, body, created_at)
		VALUES ($1, 'usr_1', '민수', 'hello', $2)
	`, id, createdAt); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}
