package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

// Messages - append-only chat log of a session.
type Messages struct {
	access     *Access
	msgRepo    MessageRepository
	pollRepo   PollRepository
	markerRepo ReadMarkerRepository
	now        func() time.Time
}

func NewMessages(access *Access, msgRepo MessageRepository, pollRepo PollRepository, markerRepo ReadMarkerRepository) *Messages {
	return &Messages{
		access:     access,
		msgRepo:    msgRepo,
		pollRepo:   pollRepo,
		markerRepo: markerRepo,
		now:        time.Now,
	}
}

func (m *Messages) Append(ctx context.Context, sessionID, senderID, content string) (*domain.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("empty message")
	}
	if err := m.access.requireAccess(ctx, sessionID, senderID); err != nil {
		return nil, err
	}

	msg := domain.NewTextMessage(sessionID, senderID, content, m.now().UTC())
	if err := m.msgRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("could not save message: %w", err)
	}
	return msg, nil
}

// AppendPoll creates the POLL message paired with an already created poll.
func (m *Messages) AppendPoll(ctx context.Context, sessionID, senderID, pollID, question string) (*domain.ChatMessage, error) {
	if err := m.access.requireAccess(ctx, sessionID, senderID); err != nil {
		return nil, err
	}
	poll, err := m.pollRepo.GetByID(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve poll: %w", err)
	}
	if poll.SessionID != sessionID {
		return nil, fmt.Errorf("%w: poll belongs to another session", ErrPollNotFound)
	}
	if question == "" {
		question = poll.Question
	}

	msg := domain.NewPollMessage(sessionID, senderID, pollID, question, m.now().UTC())
	if err = m.msgRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("could not save poll message: %w", err)
	}
	return msg, nil
}

func (m *Messages) ListAll(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	return m.ListAfter(ctx, sessionID, 0)
}

func (m *Messages) ListAfter(ctx context.Context, sessionID string, cursor int64) ([]domain.ChatMessage, error) {
	if cursor < 0 {
		cursor = 0
	}
	msgs, err := m.msgRepo.ListAfter(ctx, sessionID, cursor)
	if err != nil {
		return nil, fmt.Errorf("could not list messages: %w", err)
	}
	return msgs, nil
}

// MarkReadUpTo is best-effort, callers log the error and move on.
func (m *Messages) MarkReadUpTo(ctx context.Context, sessionID, userID string, messageID int64) error {
	if messageID <= 0 {
		return nil
	}
	if err := m.markerRepo.MarkReadUpTo(ctx, sessionID, userID, messageID); err != nil {
		return fmt.Errorf("could not mark messages read: %w", err)
	}
	return nil
}
