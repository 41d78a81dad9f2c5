package cockroach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
)

const messageColumns = `m.message_id, m.conversation_id, m.author_id, m.author_kind, m.kind, m.text,
	m.media_name, m.media_size, m.media_key, m.media_mime, m.status, m.is_starred, m.created_at, m.updated_at`

// MessageRepository is the message log
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a message. The id is caller-assigned; a second insert
// with the same id returns repository.ErrDuplicate.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (
			message_id, conversation_id, author_id, author_kind, kind, text,
			media_name, media_size, media_key, media_mime, status, is_starred, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var name, key, mime *string
	var size *int64
	if msg.Media != nil {
		name, key, size = &msg.Media.Name, &msg.Media.StorageKey, &msg.Media.Size
		if msg.Media.MimeType != "" {
			mime = &msg.Media.MimeType
		}
	}

	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Author.ID,
		msg.Author.Kind,
		msg.Kind,
		msg.Text,
		name, size, key, mime,
		msg.Status,
		msg.IsStarred,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "create message")
	}
	return nil
}

// GetByID retrieves a message by id
func (r *MessageRepository) GetByID(ctx context.Context, messageID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.message_id = $1`

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		return nil, mapError(err, "get message")
	}
	return msg, nil
}

// UpdateStatus moves a message from one status to another.
// The update only applies while the stored status still equals from, so
// concurrent acks can never move a message backwards.
func (r *MessageRepository) UpdateStatus(ctx context.Context, messageID string, from, to domain.MessageStatus) (bool, error) {
	query := `
		UPDATE messages SET status = $3, updated_at = $4
		WHERE message_id = $1 AND status = $2
	`

	tag, err := r.pool.Exec(ctx, query, messageID, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStarred flags or unflags a message
func (r *MessageRepository) SetStarred(ctx context.Context, messageID string, starred bool) error {
	query := `UPDATE messages SET is_starred = $2, updated_at = $3 WHERE message_id = $1`

	tag, err := r.pool.Exec(ctx, query, messageID, starred, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update starred flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByConversation returns a page of messages, newest first, plus the total count
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.message_id DESC
		LIMIT $2 OFFSET $3
	`
	messages, err := r.query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Search matches text and media names case-insensitively. A non-empty
// ParticipantID restricts results to that participant's conversations.
func (r *MessageRepository) Search(ctx context.Context, filter *domain.MessageFilter) ([]*domain.Message, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Query != "" {
		p := arg("%" + escapeLike(filter.Query) + "%")
		where = append(where, fmt.Sprintf("(m.text ILIKE %s OR m.media_name ILIKE %s)", p, p))
	}
	if filter.StarredOnly {
		where = append(where, "m.is_starred")
	}
	if filter.ConversationID != "" {
		where = append(where, "m.conversation_id = "+arg(filter.ConversationID))
	}
	if filter.ParticipantID != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM conversation_participants cp
			WHERE cp.conversation_id = m.conversation_id AND cp.participant_id = %s)`, arg(filter.ParticipantID)))
	}

	query := `SELECT ` + messageColumns + ` FROM messages m`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.message_id DESC LIMIT %s OFFSET %s", arg(filter.Limit), arg(filter.Offset))

	return r.query(ctx, query, args...)
}

// Latest returns the newest message of a conversation by created_at
func (r *MessageRepository) Latest(ctx context.Context, conversationID string) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.message_id DESC
		LIMIT 1
	`

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, mapError(err, "get latest message")
	}
	return msg, nil
}

// CountNotAuthoredBy counts the messages participantID could have unread
func (r *MessageRepository) CountNotAuthoredBy(ctx context.Context, conversationID, participantID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE conversation_id = $1 AND author_id <> $2`,
		conversationID, participantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *MessageRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row scanner) (*domain.Message, error) {
	var (
		msg             domain.Message
		name, key, mime *string
		size            *int64
	)
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Author.ID,
		&msg.Author.Kind,
		&msg.Kind,
		&msg.Text,
		&name, &size, &key, &mime,
		&msg.Status,
		&msg.IsStarred,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Media = mediaFrom(name, size, key, mime)
	return &msg, nil
}

func mediaFrom(name *string, size *int64, key *string, mime *string) *domain.Media {
	if key == nil {
		return nil
	}
	media := &domain.Media{StorageKey: *key}
	if name != nil {
		media.Name = *name
	}
	if size != nil {
		media.Size = *size
	}
	if mime != nil {
		media.MimeType = *mime
	}
	return media
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
