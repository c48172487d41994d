// Package memory keeps every repository in process memory behind one mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

type participationKey struct {
	sessionID string
	userID    string
}

type DB struct {
	mu sync.RWMutex

	sessions       map[string]domain.Session
	users          map[string]domain.User
	participations map[participationKey]domain.ParticipationStatus

	lastMessageID int64
	messages      map[string][]domain.ChatMessage

	polls   map[string]domain.Poll
	options map[string][]domain.PollOption
	votes   map[string][]domain.PollVote

	markers map[participationKey]int64
}

func New() *DB {
	return &DB{
		sessions:       make(map[string]domain.Session),
		users:          make(map[string]domain.User),
		participations: make(map[participationKey]domain.ParticipationStatus),
		messages:       make(map[string][]domain.ChatMessage),
		polls:          make(map[string]domain.Poll),
		options:        make(map[string][]domain.PollOption),
		votes:          make(map[string][]domain.PollVote),
		markers:        make(map[participationKey]int64),
	}
}

func (db *DB) PutSession(session domain.Session) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sessions[session.ID] = session
}

func (db *DB) PutUser(user domain.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[user.ID] = user
}

func (db *DB) PutParticipation(p domain.Participation) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.participations[participationKey{p.SessionID, p.UserID}] = p.Status
}

// ReadMarker returns the last message ID the user has read in the session.
func (db *DB) ReadMarker(sessionID, userID string) int64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.markers[participationKey{sessionID, userID}]
}

func (db *DB) Sessions() *SessionRepository { return &SessionRepository{db: db} }
func (db *DB) Users() *UserRepository       { return &UserRepository{db: db} }
func (db *DB) Messages() *MessageRepository { return &MessageRepository{db: db} }
func (db *DB) Polls() *PollRepository       { return &PollRepository{db: db} }
func (db *DB) Votes() *VoteRepository       { return &VoteRepository{db: db} }
func (db *DB) Markers() *MarkerRepository   { return &MarkerRepository{db: db} }

type SessionRepository struct{ db *DB }

func (r *SessionRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	session, ok := r.db.sessions[id]
	if !ok {
		return nil, usecase.ErrSessionNotFound
	}
	return &session, nil
}

func (r *SessionRepository) IsAccepted(_ context.Context, sessionID, userID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.participations[participationKey{sessionID, userID}] == domain.ParticipationAccepted, nil
}

type UserRepository struct{ db *DB }

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	user, ok := r.db.users[id]
	if !ok {
		return nil, usecase.ErrUserNotFound
	}
	return &user, nil
}

type MessageRepository struct{ db *DB }

func (r *MessageRepository) Append(_ context.Context, msg *domain.ChatMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.appendMessageLocked(msg)
	return nil
}

func (db *DB) appendMessageLocked(msg *domain.ChatMessage) {
	db.lastMessageID++
	msg.ID = db.lastMessageID
	db.messages[msg.SessionID] = append(db.messages[msg.SessionID], *msg)
}

func (r *MessageRepository) ListAfter(_ context.Context, sessionID string, cursor int64) ([]domain.ChatMessage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	log := r.db.messages[sessionID]
	// IDs are appended in ascending order.
	i := sort.Search(len(log), func(i int) bool { return log[i].ID > cursor })
	res := make([]domain.ChatMessage, len(log)-i)
	copy(res, log[i:])
	return res, nil
}

type MarkerRepository struct{ db *DB }

func (r *MarkerRepository) MarkReadUpTo(_ context.Context, sessionID, userID string, messageID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := participationKey{sessionID, userID}
	if r.db.markers[key] < messageID {
		r.db.markers[key] = messageID
	}
	return nil
}

type PollRepository struct{ db *DB }

func (r *PollRepository) Save(_ context.Context, poll *domain.Poll, options []domain.PollOption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.polls[poll.ID] = *poll
	r.db.options[poll.ID] = append([]domain.PollOption(nil), options...)
	return nil
}

func (r *PollRepository) SaveWithMessage(_ context.Context, poll *domain.Poll, options []domain.PollOption, msg *domain.ChatMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.polls[poll.ID] = *poll
	r.db.options[poll.ID] = append([]domain.PollOption(nil), options...)
	r.db.appendMessageLocked(msg)
	return nil
}

func (r *PollRepository) GetByID(_ context.Context, id string) (*domain.Poll, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	poll, ok := r.db.polls[id]
	if !ok {
		return nil, usecase.ErrPollNotFound
	}
	return &poll, nil
}

func (r *PollRepository) Close(_ context.Context, id string) error {
	return r.update(id, func(poll *domain.Poll) {
		poll.Open = false
	})
}

func (r *PollRepository) SetPinned(_ context.Context, id string, pinned bool, at time.Time) error {
	return r.update(id, func(poll *domain.Poll) {
		poll.Pinned = pinned
		poll.PinnedAt = time.Time{}
		if pinned {
			poll.PinnedAt = at
		}
	})
}

func (r *PollRepository) update(id string, fn func(poll *domain.Poll)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	poll, ok := r.db.polls[id]
	if !ok {
		return usecase.ErrPollNotFound
	}
	fn(&poll)
	r.db.polls[id] = poll
	return nil
}

func (r *PollRepository) ListPinned(_ context.Context, sessionID string) ([]domain.Poll, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var res []domain.Poll
	for _, poll := range r.db.polls {
		if poll.SessionID == sessionID && poll.Pinned {
			res = append(res, poll)
		}
	}
	domain.SortPinned(res)
	return res, nil
}

func (r *PollRepository) AddOption(_ context.Context, option *domain.PollOption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.polls[option.PollID]; !ok {
		return usecase.ErrPollNotFound
	}
	r.db.options[option.PollID] = append(r.db.options[option.PollID], *option)
	return nil
}

func (r *PollRepository) ListOptions(_ context.Context, pollID string) ([]domain.PollOption, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return append([]domain.PollOption(nil), r.db.options[pollID]...), nil
}

type VoteRepository struct{ db *DB }

func (r *VoteRepository) Replace(_ context.Context, pollID, userID string, optionIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	votes := dropUser(r.db.votes[pollID], userID)
	for _, optionID := range optionIDs {
		votes = append(votes, domain.PollVote{PollID: pollID, UserID: userID, OptionID: optionID})
	}
	r.db.votes[pollID] = votes
	return nil
}

func (r *VoteRepository) DeleteByUser(_ context.Context, pollID, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.votes[pollID] = dropUser(r.db.votes[pollID], userID)
	return nil
}

func (r *VoteRepository) ListByPoll(_ context.Context, pollID string) ([]domain.PollVote, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return append([]domain.PollVote(nil), r.db.votes[pollID]...), nil
}

func dropUser(votes []domain.PollVote, userID string) []domain.PollVote {
	kept := make([]domain.PollVote, 0, len(votes))
	for _, vote := range votes {
		if vote.UserID != userID {
			kept = append(kept, vote)
		}
	}
	return kept
}
