package usecase

import (
	"context"
	"errors"
	"fmt"
)

// Access - membership and privilege checks for sessions and polls.
type Access struct {
	sessionRepo SessionRepository
	userRepo    UserRepository
	pollRepo    PollRepository
}

func NewAccess(sessionRepo SessionRepository, userRepo UserRepository, pollRepo PollRepository) *Access {
	return &Access{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		pollRepo:    pollRepo,
	}
}

// CanAccess is true if user owns the session or has an accepted participation in it.
func (a *Access) CanAccess(ctx context.Context, sessionID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	session, err := a.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("could not retrieve session: %w", err)
	}
	if session.OwnerUserID == userID {
		return true, nil
	}
	ok, err := a.sessionRepo.IsAccepted(ctx, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("could not check participation: %w", err)
	}
	return ok, nil
}

// IsPrivileged is true if user owns the session, created the poll or is an admin.
func (a *Access) IsPrivileged(ctx context.Context, sessionID, pollID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	session, err := a.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("could not retrieve session: %w", err)
	}
	if session.OwnerUserID == userID {
		return true, nil
	}
	if pollID != "" {
		poll, err := a.pollRepo.GetByID(ctx, pollID)
		if err != nil {
			return false, fmt.Errorf("could not retrieve poll: %w", err)
		}
		if poll.CreatedBy == userID {
			return true, nil
		}
	}
	user, err := a.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("could not retrieve user: %w", err)
	}
	return user.IsAdmin(), nil
}

func (a *Access) requireAccess(ctx context.Context, sessionID, userID string) error {
	ok, err := a.CanAccess(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

func (a *Access) requirePrivileged(ctx context.Context, sessionID, pollID, userID string) error {
	ok, err := a.IsPrivileged(ctx, sessionID, pollID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
