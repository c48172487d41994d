package usecase

import (
	"context"
	"time"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// IsAccepted reports whether the user has an accepted participation in the session.
	IsAccepted(ctx context.Context, sessionID, userID string) (bool, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type MessageRepository interface {
	// Append stores the message and assigns its ID.
	Append(ctx context.Context, msg *domain.ChatMessage) error
	// ListAfter returns messages with ID > cursor in ascending order.
	ListAfter(ctx context.Context, sessionID string, cursor int64) ([]domain.ChatMessage, error)
}

type ReadMarkerRepository interface {
	MarkReadUpTo(ctx context.Context, sessionID, userID string, messageID int64) error
}

type PollRepository interface {
	// Save stores a new poll together with its initial options.
	Save(ctx context.Context, poll *domain.Poll, options []domain.PollOption) error
	// SaveWithMessage stores a new poll, its options and its POLL message as one unit
	// and assigns the message ID.
	SaveWithMessage(ctx context.Context, poll *domain.Poll, options []domain.PollOption, msg *domain.ChatMessage) error
	GetByID(ctx context.Context, id string) (*domain.Poll, error)
	Close(ctx context.Context, id string) error
	SetPinned(ctx context.Context, id string, pinned bool, at time.Time) error
	// ListPinned returns pinned polls of a session ordered by pin time, then by ID.
	ListPinned(ctx context.Context, sessionID string) ([]domain.Poll, error)
	AddOption(ctx context.Context, option *domain.PollOption) error
	ListOptions(ctx context.Context, pollID string) ([]domain.PollOption, error)
}

type VoteRepository interface {
	// Replace deletes every vote of the user in the poll and inserts the new ones as one unit.
	Replace(ctx context.Context, pollID, userID string, optionIDs []string) error
	DeleteByUser(ctx context.Context, pollID, userID string) error
	ListByPoll(ctx context.Context, pollID string) ([]domain.PollVote, error)
}
