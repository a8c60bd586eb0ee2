package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khanhquoc4114/app-sub000/internal/models"
	"github.com/khanhquoc4114/app-sub000/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	MaxMessageLength    = 4000
)

type ChatService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         userReader
}

// ChatDelivery is a stored message together with the conversation it
// landed in.
type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.ChatMessage
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
	}
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID int64,
	role string,
) ([]models.ConversationSummary, error) {
	if !models.ValidRole(role) {
		return nil, ErrForbidden
	}
	if actorID <= 0 {
		return nil, ErrInvalidInput
	}

	return s.conversationRepo.ListForParticipant(ctx, actorID)
}

// History returns the newest limit messages between the actor and peer,
// oldest first. A pair that never exchanged a message has an empty history.
func (s *ChatService) History(
	ctx context.Context,
	actorID int64,
	role string,
	peerID int64,
	limit int,
) ([]models.ChatMessage, error) {
	if err := validateParticipants(actorID, role, peerID); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, peerID); err != nil {
		return nil, err
	}

	conversation, err := s.conversationRepo.GetBetween(ctx, actorID, peerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []models.ChatMessage{}, nil
		}
		return nil, err
	}

	return s.messageRepo.ListRecent(ctx, conversation.ID, NormalizeHistoryLimit(limit))
}

// MarkRead marks every message the actor received from peer as read. It
// is idempotent and returns how many messages changed.
func (s *ChatService) MarkRead(
	ctx context.Context,
	actorID int64,
	role string,
	peerID int64,
) (int64, error) {
	if err := validateParticipants(actorID, role, peerID); err != nil {
		return 0, err
	}
	if err := s.ensureUser(ctx, peerID); err != nil {
		return 0, err
	}

	conversation, err := s.conversationRepo.GetBetween(ctx, actorID, peerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}

	return s.messageRepo.MarkConversationRead(ctx, conversation.ID, actorID)
}

func (s *ChatService) SendMessage(
	ctx context.Context,
	actorID int64,
	role string,
	receiverID int64,
	content string,
) (*ChatDelivery, error) {
	if err := validateParticipants(actorID, role, receiverID); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return nil, ErrInvalidInput
	}

	if err := s.ensureUser(ctx, receiverID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	conversation, err := txConversationRepo.CreateOrGet(ctx, actorID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}

	message, err := txMessageRepo.Create(ctx, conversation.ID, actorID, receiverID, trimmed)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	if err := txConversationRepo.Touch(ctx, conversation.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ChatDelivery{
		Conversation: conversation,
		Message:      message,
	}, nil
}

// NormalizeHistoryLimit applies the default and the upper bound.
func NormalizeHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func validateParticipants(actorID int64, role string, peerID int64) error {
	if !models.ValidRole(role) {
		return ErrForbidden
	}
	if actorID <= 0 || peerID <= 0 || actorID == peerID {
		return ErrInvalidInput
	}
	return nil
}

func (s *ChatService) ensureUser(ctx context.Context, userID int64) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}
