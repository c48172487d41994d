package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

const minPollOptions = 2

// Polls - poll, option and vote operations of the chat feed.
type Polls struct {
	access   *Access
	pollRepo PollRepository
	voteRepo VoteRepository
	userRepo UserRepository
	now      func() time.Time
}

func NewPolls(access *Access, pollRepo PollRepository, voteRepo VoteRepository, userRepo UserRepository) *Polls {
	return &Polls{
		access:   access,
		pollRepo: pollRepo,
		voteRepo: voteRepo,
		userRepo: userRepo,
		now:      time.Now,
	}
}

// ValidateDraft checks a draft without touching the store.
func ValidateDraft(draft domain.PollDraft) error {
	if strings.TrimSpace(draft.Question) == "" {
		return invalid("empty question")
	}
	count := 0
	for _, text := range draft.Options {
		if strings.TrimSpace(text) == "" {
			return invalid("empty option")
		}
		count++
	}
	if count < minPollOptions {
		return invalid("the number of options should be at least 2")
	}
	return nil
}

// ValidateSelection checks a vote selection without touching the store.
// An empty selection is valid and replaces the user's votes with nothing.
func ValidateSelection(allowMulti bool, optionIDs []string) error {
	if !allowMulti && len(domain.NewOptionSet(optionIDs...)) > 1 {
		return fmt.Errorf("%w: poll allows a single option", ErrInvalidVote)
	}
	return nil
}

func (p *Polls) CreatePoll(ctx context.Context, sessionID, creatorID string, draft domain.PollDraft) (string, error) {
	poll, options, err := p.buildPoll(ctx, sessionID, creatorID, draft)
	if err != nil {
		return "", err
	}
	if err = p.pollRepo.Save(ctx, poll, options); err != nil {
		return "", fmt.Errorf("could not save poll: %w", err)
	}
	return poll.ID, nil
}

// StartPoll creates the poll, its options and the paired POLL message in one write.
// The returned message carries the new poll ID and its assigned message ID.
func (p *Polls) StartPoll(ctx context.Context, sessionID, creatorID string, draft domain.PollDraft) (*domain.ChatMessage, error) {
	poll, options, err := p.buildPoll(ctx, sessionID, creatorID, draft)
	if err != nil {
		return nil, err
	}
	msg := domain.NewPollMessage(sessionID, creatorID, poll.ID, poll.Question, p.now().UTC())
	if err = p.pollRepo.SaveWithMessage(ctx, poll, options, msg); err != nil {
		return nil, fmt.Errorf("could not save poll: %w", err)
	}
	return msg, nil
}

func (p *Polls) buildPoll(ctx context.Context, sessionID, creatorID string, draft domain.PollDraft) (*domain.Poll, []domain.PollOption, error) {
	if err := ValidateDraft(draft); err != nil {
		return nil, nil, err
	}
	if err := p.access.requireAccess(ctx, sessionID, creatorID); err != nil {
		return nil, nil, err
	}

	poll := domain.NewPoll(sessionID, creatorID, draft)
	poll.ID = newUUID()
	poll.Question = strings.TrimSpace(poll.Question)
	if poll.Pinned {
		poll.PinnedAt = p.now().UTC()
	}
	options := make([]domain.PollOption, len(draft.Options))
	for i, text := range draft.Options {
		options[i] = domain.PollOption{
			ID:       newUUID(),
			PollID:   poll.ID,
			Text:     strings.TrimSpace(text),
			AddedBy:  creatorID,
			Position: i,
		}
	}
	return poll, options, nil
}

func (p *Polls) AddOption(ctx context.Context, pollID, userID, text string) (*domain.PollOption, error) {
	return p.addOption(ctx, pollID, userID, text, false)
}

// AddOptionPrivileged ignores the poll's AllowAddOptions flag but still requires privilege.
func (p *Polls) AddOptionPrivileged(ctx context.Context, pollID, userID, text string) (*domain.PollOption, error) {
	return p.addOption(ctx, pollID, userID, text, true)
}

func (p *Polls) addOption(ctx context.Context, pollID, userID, text string, privilegedOnly bool) (*domain.PollOption, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("empty option")
	}
	poll, err := p.openPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	privileged, err := p.access.IsPrivileged(ctx, poll.SessionID, poll.ID, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case privileged:
	case privilegedOnly || !poll.AllowAddOptions:
		return nil, ErrUnauthorized
	default:
		if err = p.access.requireAccess(ctx, poll.SessionID, userID); err != nil {
			return nil, err
		}
	}

	existing, err := p.pollRepo.ListOptions(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("could not list options: %w", err)
	}
	option := &domain.PollOption{
		ID:       newUUID(),
		PollID:   pollID,
		Text:     text,
		AddedBy:  userID,
		Position: nextPosition(existing),
	}
	if err = p.pollRepo.AddOption(ctx, option); err != nil {
		return nil, fmt.Errorf("could not save option: %w", err)
	}
	return option, nil
}

func (p *Polls) Vote(ctx context.Context, pollID, userID string, allowMulti bool, optionIDs []string) error {
	if err := ValidateSelection(allowMulti, optionIDs); err != nil {
		return err
	}
	poll, err := p.openPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err = ValidateSelection(poll.AllowMulti, optionIDs); err != nil {
		return err
	}
	if err = p.access.requireAccess(ctx, poll.SessionID, userID); err != nil {
		return err
	}

	options, err := p.pollRepo.ListOptions(ctx, pollID)
	if err != nil {
		return fmt.Errorf("could not list options: %w", err)
	}
	known := make(domain.OptionSet, len(options))
	for _, option := range options {
		known[option.ID] = struct{}{}
	}
	selection := domain.NewOptionSet(optionIDs...)
	for id := range selection {
		if !known.Has(id) {
			return ErrNoSuchOption
		}
	}

	if err = p.voteRepo.Replace(ctx, pollID, userID, selection.Sorted()); err != nil {
		return fmt.Errorf("could not replace votes: %w", err)
	}
	return nil
}

// ClearVote drops every vote of the user, it is a no-op when there are none.
// A closed poll keeps its votes and ClearVote returns ErrPollClosed.
func (p *Polls) ClearVote(ctx context.Context, pollID, userID string) error {
	if _, err := p.openPoll(ctx, pollID); err != nil {
		return err
	}
	if err := p.voteRepo.DeleteByUser(ctx, pollID, userID); err != nil {
		return fmt.Errorf("could not delete votes: %w", err)
	}
	return nil
}

func (p *Polls) SetPinned(ctx context.Context, pollID, actorID string, pinned bool) error {
	poll, err := p.getPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err = p.access.requirePrivileged(ctx, poll.SessionID, poll.ID, actorID); err != nil {
		return err
	}
	if poll.Pinned == pinned {
		return nil
	}
	if err = p.pollRepo.SetPinned(ctx, pollID, pinned, p.now().UTC()); err != nil {
		return fmt.Errorf("could not pin poll: %w", err)
	}
	return nil
}

// Close is one-way, closing a closed poll is a no-op.
func (p *Polls) Close(ctx context.Context, pollID, actorID string) error {
	poll, err := p.getPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err = p.access.requirePrivileged(ctx, poll.SessionID, poll.ID, actorID); err != nil {
		return err
	}
	if !poll.Open {
		return nil
	}
	if err = p.pollRepo.Close(ctx, pollID); err != nil {
		return fmt.Errorf("could not close poll: %w", err)
	}
	return nil
}

func (p *Polls) GetSnapshot(ctx context.Context, pollID, viewerID string) (*domain.PollSnapshot, error) {
	poll, err := p.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	options, err := p.pollRepo.ListOptions(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("could not list options: %w", err)
	}
	votes, err := p.voteRepo.ListByPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("could not list votes: %w", err)
	}

	creatorName := poll.CreatedBy
	creator, err := p.userRepo.GetByID(ctx, poll.CreatedBy)
	switch {
	case err == nil && creator.DisplayName != "":
		creatorName = creator.DisplayName
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("could not retrieve poll author: %w", err)
	}

	return BuildSnapshot(poll, options, votes, viewerID, creatorName), nil
}

func (p *Polls) ListPinnedPollIDs(ctx context.Context, sessionID string) ([]string, error) {
	polls, err := p.pollRepo.ListPinned(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not list pinned polls: %w", err)
	}
	ids := make([]string, len(polls))
	for i := range polls {
		ids[i] = polls[i].ID
	}
	return ids, nil
}

func (p *Polls) getPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	poll, err := p.pollRepo.GetByID(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve poll: %w", err)
	}
	return poll, nil
}

func (p *Polls) openPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	poll, err := p.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.Open {
		return nil, ErrPollClosed
	}
	return poll, nil
}

func nextPosition(options []domain.PollOption) int {
	next := 0
	for _, option := range options {
		if option.Position >= next {
			next = option.Position + 1
		}
	}
	return next
}

var newUUID = func() string {
	return uuid.NewString()
}
