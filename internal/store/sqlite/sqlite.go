package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/airchat/airchat-server/internal/store"
)

// Schema is applied on open. CREATE IF NOT EXISTS keeps restarts cheap;
// there is no migration machinery beyond this.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id   INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	attachment  TEXT NOT NULL DEFAULT '',
	seen        BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, receiver_id, id);

CREATE TABLE IF NOT EXISTS unread_counts (
	recipient_id INTEGER NOT NULL,
	sender_id    INTEGER NOT NULL,
	count        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (recipient_id, sender_id)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after
// the schema is applied. Useful for tests to seed fixture data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, fullName, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (email, full_name, password_hash)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, email, fullName, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, `WHERE email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, email, full_name, password_hash, avatar, created_at
		FROM users ` + where

	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.Avatar,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// UpdateProfile updates mutable profile fields. Empty values are left unchanged.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id int64, fullName, avatar string) (*store.User, error) {
	query := `
		UPDATE users
		SET full_name = CASE WHEN ? != '' THEN ? ELSE full_name END,
		    avatar    = CASE WHEN ? != '' THEN ? ELSE avatar END
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, fullName, fullName, avatar, avatar, id)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetUserByID(ctx, id)
}

// DeleteUser removes the account record.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// ListUsersExcept lists all users except the given one, ordered by full name.
func (s *SQLiteStore) ListUsersExcept(ctx context.Context, id int64) ([]*store.User, error) {
	query := `
		SELECT id, email, full_name, password_hash, avatar, created_at
		FROM users
		WHERE id != ?
		ORDER BY full_name
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.FullName,
			&user.PasswordHash,
			&user.Avatar,
			&user.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message with seen=false and increments the
// unread counter for (receiver, sender) in the same transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, senderID, receiverID int64, text, attachment string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, text, attachment, seen)
		VALUES (?, ?, ?, ?, 0)
	`, senderID, receiverID, text, attachment)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO unread_counts (recipient_id, sender_id, count)
		VALUES (?, ?, 1)
		ON CONFLICT (recipient_id, sender_id) DO UPDATE SET count = count + 1
	`, receiverID, senderID)
	if err != nil {
		return nil, fmt.Errorf("increment unread: %w", err)
	}

	var msg store.Message
	err = tx.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, text, attachment, seen, created_at
		FROM messages WHERE id = ?
	`, id).Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Text,
		&msg.Attachment,
		&msg.Seen,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("read back message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &msg, nil
}

// MarkConversationSeen marks all unseen messages from counterpart to reader
// as seen and zeroes the unread counter, in one transaction. Idempotent.
func (s *SQLiteStore) MarkConversationSeen(ctx context.Context, readerID, counterpartID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE messages SET seen = 1
		WHERE sender_id = ? AND receiver_id = ? AND seen = 0
	`, counterpartID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM unread_counts WHERE recipient_id = ? AND sender_id = ?
	`, readerID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return marked, nil
}

// History returns all messages between two users, ascending by creation time.
func (s *SQLiteStore) History(ctx context.Context, userA, userB int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, text, attachment, seen, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Text,
			&msg.Attachment,
			&msg.Seen,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// UnreadCounts returns per-sender unseen message counts for the recipient.
func (s *SQLiteStore) UnreadCounts(ctx context.Context, recipientID int64) (map[int64]int64, error) {
	query := `
		SELECT sender_id, count FROM unread_counts
		WHERE recipient_id = ? AND count > 0
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var senderID, count int64
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[senderID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counts: %w", err)
	}

	return counts, nil
}

// DeleteConversation removes all messages between two users, both
// directions, along with their unread counters.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userA, userB int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
	`, userA, userB, userB, userA)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM unread_counts
		WHERE (recipient_id = ? AND sender_id = ?)
		   OR (recipient_id = ? AND sender_id = ?)
	`, userA, userB, userB, userA)
	if err != nil {
		return fmt.Errorf("delete unread counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// DeleteAllForUser removes every message and unread counter involving the user.
func (s *SQLiteStore) DeleteAllForUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM messages WHERE sender_id = ? OR receiver_id = ?
	`, userID, userID)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM unread_counts WHERE recipient_id = ? OR sender_id = ?
	`, userID, userID)
	if err != nil {
		return fmt.Errorf("delete unread counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
