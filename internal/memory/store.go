// Package memory keeps chat transcripts in an embedded SQLite database.
// The default ":memory:" path lives only as long as the process.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agrisaarthi/internal/domain"

	_ "modernc.org/sqlite"
)

const inMemory = ":memory:"

// SQLiteStore implements domain.ConversationStore. Messages are inserted and
// read back in insertion order. There is no UPDATE path.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.ConversationStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := dbPath
	if dbPath != inMemory && !strings.HasPrefix(dbPath, "file:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, id string, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("create conversation %s: %w", id, domain.ErrInvalidRole)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, role, created_at) VALUES (?, ?, ?)`,
		id, string(role), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create conversation %s: %w", id, err)
	}
	return nil
}

// AppendMessage adds msg at the end of the conversation. Appending to a
// discarded or unknown conversation returns domain.ErrClosed.
func (s *SQLiteStore) AppendMessage(ctx context.Context, convID string, msg domain.Message) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender, text, audio_url, type, created_at_ns)
		 SELECT ?, id, ?, ?, ?, ?, ? FROM conversations WHERE id = ?`,
		msg.ID, string(msg.Sender), msg.Text, msg.AudioURL, string(msg.Type), msg.Timestamp.UnixNano(), convID,
	)
	if err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", convID, domain.ErrClosed)
	}
	return nil
}

// Messages returns the whole conversation, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, convID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, text, audio_url, type, created_at_ns
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, convID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m      domain.Message
			sender string
			typ    string
			ns     int64
		)
		if err := rows.Scan(&m.ID, &sender, &m.Text, &m.AudioURL, &typ, &ns); err != nil {
			return nil, err
		}
		m.Sender = domain.Sender(sender)
		m.Type = domain.MessageType(typ)
		m.Timestamp = time.Unix(0, ns)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) CountMessages(ctx context.Context, convID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, convID,
	).Scan(&n)
	return n, err
}

// DiscardConversation drops a conversation and its messages. Unknown ids are ignored.
func (s *SQLiteStore) DiscardConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("discard messages of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("discard conversation %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("conversation discarded", "conversation", id)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
