package cockroach

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
)

// ConversationRepository handles conversations, their participants and unread counters
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// PairKey is the uniqueness key of a conversation: one per customer,
// one per unordered pair of agents.
func PairKey(conv *domain.Conversation) string {
	if customer, ok := conv.Customer(); ok {
		return "customer:" + customer.ID
	}
	ids := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return "agents:" + strings.Join(ids, ":")
}

// Create inserts the conversation and its participants in one transaction.
// A conversation that already exists for the same pair returns repository.ErrDuplicate.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (conversation_id, type, pair_key, last_message_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conv.ID, conv.Type, PairKey(conv), conv.LastMessageID, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return mapError(err, "create conversation")
	}

	for _, p := range conv.Participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, participant_id, participant_kind, unread_count, joined_at)
			VALUES ($1, $2, $3, $4, $5)
		`, conv.ID, p.ID, p.Kind, p.UnreadCount, conv.CreatedAt)
		if err != nil {
			return mapError(err, "add participant")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation with its participants and cached last message
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	convs, err := r.queryConversations(ctx, conversationSelect+` WHERE c.conversation_id = $1`, conversationID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, repository.ErrNotFound
	}
	return convs[0], nil
}

// GetByCustomer returns the single conversation of a customer
func (r *ConversationRepository) GetByCustomer(ctx context.Context, customerID string) (*domain.Conversation, error) {
	convs, err := r.queryConversations(ctx, conversationSelect+` WHERE c.pair_key = $1`, "customer:"+customerID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, repository.ErrNotFound
	}
	return convs[0], nil
}

// ExistsBetween reports whether two agents already share a conversation
func (r *ConversationRepository) ExistsBetween(ctx context.Context, a, b string) (bool, error) {
	ids := []string{a, b}
	sort.Strings(ids)

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE pair_key = $1)`,
		"agents:"+strings.Join(ids, ":"),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return exists, nil
}

// List returns conversations newest activity first with the total count.
// Activity is the cached last message's created_at, falling back to updated_at.
func (r *ConversationRepository) List(ctx context.Context, filter *domain.ConversationFilter) ([]*domain.Conversation, int64, error) {
	where, args := conversationWhere(filter)

	var total int64
	countQuery := `SELECT count(*) FROM conversations c
		LEFT JOIN messages m ON m.message_id = c.last_message_id` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := conversationSelect + where + fmt.Sprintf(`
		ORDER BY COALESCE(m.created_at, c.updated_at) DESC, c.conversation_id
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	convs, err := r.queryConversations(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

// ListIDs returns every conversation id, used by the repair pass
func (r *ConversationRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT conversation_id FROM conversations ORDER BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation ids: %w", err)
	}
	return ids, nil
}

// SetLastMessage overwrites the cached last message (last writer wins)
func (r *ConversationRepository) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET last_message_id = $2, updated_at = $3
		WHERE conversation_id = $1
	`, conversationID, messageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ClearLastMessage drops the cached last message of an empty conversation
func (r *ConversationRepository) ClearLastMessage(ctx context.Context, conversationID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message_id = NULL WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to clear last message: %w", err)
	}
	return nil
}

// IncrementUnread adds one to a participant's counter in a single statement
func (r *ConversationRepository) IncrementUnread(ctx context.Context, conversationID, participantID string) error {
	return r.execCounter(ctx, `
		UPDATE conversation_participants SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND participant_id = $2
	`, "increment unread", conversationID, participantID)
}

// DecrementUnread subtracts one, clamped at zero
func (r *ConversationRepository) DecrementUnread(ctx context.Context, conversationID, participantID string) error {
	return r.execCounter(ctx, `
		UPDATE conversation_participants SET unread_count = GREATEST(unread_count - 1, 0)
		WHERE conversation_id = $1 AND participant_id = $2
	`, "decrement unread", conversationID, participantID)
}

// ClampUnread bounds a counter to [0, max]
func (r *ConversationRepository) ClampUnread(ctx context.Context, conversationID, participantID string, max int) error {
	return r.execCounter(ctx, `
		UPDATE conversation_participants SET unread_count = LEAST(GREATEST(unread_count, 0), $3)
		WHERE conversation_id = $1 AND participant_id = $2
	`, "clamp unread", conversationID, participantID, max)
}

func (r *ConversationRepository) execCounter(ctx context.Context, query, op string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReplaceAgent swaps the agent of a customer conversation. The new agent starts
// with the old agent's unread count so no inbound message is lost from view.
func (r *ConversationRepository) ReplaceAgent(ctx context.Context, conversationID, oldAgentID string, agent domain.ParticipantRef) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE conversation_participants
		SET participant_id = $3, participant_kind = $4, joined_at = $5
		WHERE conversation_id = $1 AND participant_id = $2
	`, conversationID, oldAgentID, agent.ID, agent.Kind, time.Now().UTC())
	if err != nil {
		return mapError(err, "replace agent")
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE conversation_id = $1`,
		conversationID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reassignment: %w", err)
	}
	return nil
}

const conversationSelect = `
	SELECT c.conversation_id, c.type, c.last_message_id, c.created_at, c.updated_at,
		m.message_id IS NOT NULL, ` + nullableMessageColumns + `
	FROM conversations c
	LEFT JOIN messages m ON m.message_id = c.last_message_id`

const nullableMessageColumns = `COALESCE(m.message_id, ''), COALESCE(m.conversation_id, ''),
	COALESCE(m.author_id, ''), COALESCE(m.author_kind, ''), COALESCE(m.kind, ''), COALESCE(m.text, ''),
	m.media_name, m.media_size, m.media_key, m.media_mime, COALESCE(m.status, ''),
	COALESCE(m.is_starred, false), COALESCE(m.created_at, c.created_at), COALESCE(m.updated_at, c.updated_at)`

func conversationWhere(filter *domain.ConversationFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		clauses = append(clauses, "c.type = "+arg(filter.Type))
	}
	if filter.ParticipantID != "" {
		clauses = append(clauses, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM conversation_participants sp
			WHERE sp.conversation_id = c.conversation_id AND sp.participant_id = %s)`, arg(filter.ParticipantID)))
	}
	if filter.Query != "" {
		p := arg("%" + escapeLike(filter.Query) + "%")
		clauses = append(clauses, fmt.Sprintf(`(
			m.text ILIKE %[1]s OR m.media_name ILIKE %[1]s OR EXISTS (
				SELECT 1 FROM conversation_participants qp
				JOIN customers cu ON cu.customer_id = qp.participant_id
				WHERE qp.conversation_id = c.conversation_id
					AND (cu.name ILIKE %[1]s OR cu.phone ILIKE %[1]s OR cu.company ILIKE %[1]s)))`, p))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *ConversationRepository) queryConversations(ctx context.Context, query string, args ...any) ([]*domain.Conversation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var (
		convs []*domain.Conversation
		ids   []string
	)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
		ids = append(ids, conv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	participants, err := r.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, conv := range convs {
		conv.Participants = participants[conv.ID]
	}
	return convs, nil
}

func (r *ConversationRepository) participants(ctx context.Context, conversationIDs []string) (map[string][]domain.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, participant_id, participant_kind, unread_count
		FROM conversation_participants
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, participant_kind = 'customer', participant_id
	`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Participant, len(conversationIDs))
	for rows.Next() {
		var (
			convID string
			p      domain.Participant
		)
		if err := rows.Scan(&convID, &p.ID, &p.Kind, &p.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out[convID] = append(out[convID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return out, nil
}

func scanConversation(row scanner) (*domain.Conversation, error) {
	var (
		conv            domain.Conversation
		hasLast         bool
		msg             domain.Message
		name, key, mime *string
		size            *int64
	)
	err := row.Scan(
		&conv.ID, &conv.Type, &conv.LastMessageID, &conv.CreatedAt, &conv.UpdatedAt,
		&hasLast,
		&msg.ID, &msg.ConversationID, &msg.Author.ID, &msg.Author.Kind, &msg.Kind, &msg.Text,
		&name, &size, &key, &mime,
		&msg.Status, &msg.IsStarred, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if hasLast {
		msg.Media = mediaFrom(name, size, key, mime)
		conv.LastMessage = &msg
	}
	return &conv, nil
}
