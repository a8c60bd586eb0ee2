package repository

import (
	"context"
	"database/sql"

	"github.com/khanhquoc4114/app-sub000/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateOrGet returns the conversation between a and b, creating it on
// the first message.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	a int64,
	b int64,
) (*models.Conversation, error) {
	low, high := models.OrderedPair(a, b)
	query := `
		INSERT INTO conversations (user_low_id, user_high_id)
		VALUES ($1, $2)
		ON CONFLICT (user_low_id, user_high_id)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING id, user_low_id, user_high_id, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, low, high).Scan(
		&conversation.ID,
		&conversation.UserLowID,
		&conversation.UserHighID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetBetween(
	ctx context.Context,
	a int64,
	b int64,
) (*models.Conversation, error) {
	low, high := models.OrderedPair(a, b)
	query := `
		SELECT id, user_low_id, user_high_id, created_at, updated_at
		FROM conversations
		WHERE user_low_id = $1 AND user_high_id = $2
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, low, high).Scan(
		&conversation.ID,
		&conversation.UserLowID,
		&conversation.UserHighID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			CASE WHEN c.user_low_id = $1 THEN c.user_high_id ELSE c.user_low_id END,
			c.updated_at,
			lm.id,
			lm.sender_id,
			lm.receiver_id,
			lm.content,
			lm.is_read,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT id, sender_id, receiver_id, content, is_read, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND receiver_id = $1
			  AND is_read = FALSE
		) uc ON TRUE
		WHERE c.user_low_id = $1 OR c.user_high_id = $1
		ORDER BY COALESCE(lm.created_at, c.updated_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var messageID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageReceiverID sql.NullInt64
		var messageContent sql.NullString
		var messageIsRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ConversationID,
			&summary.PeerID,
			&summary.UpdatedAt,
			&messageID,
			&messageSenderID,
			&messageReceiverID,
			&messageContent,
			&messageIsRead,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			summary.LastMessage = &models.ChatMessage{
				ID:             messageID.Int64,
				ConversationID: summary.ConversationID,
				SenderID:       messageSenderID.Int64,
				ReceiverID:     messageReceiverID.Int64,
				Content:        messageContent.String,
				IsRead:         messageIsRead.Bool,
				CreatedAt:      messageCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET updated_at = NOW()
		WHERE id = $1
	`, conversationID)
	return err
}
