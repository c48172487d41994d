package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

// Intents below return only errors known without a store round-trip:
// client-side validation and lifecycle. Store outcomes reach the Renderer
// through SetBusy, ShowError and the regular render calls.

func (c *Controller) SendText(content string) error {
	if strings.TrimSpace(content) == "" {
		return c.reject(ComposerScope, fmt.Errorf("%w: empty message", usecase.ErrValidation))
	}
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		if !c.composerOpen() {
			c.fail(ComposerScope, usecase.ErrAccessDenied)
			return
		}
		c.submit(ComposerScope, func(ctx context.Context) (func(), error) {
			msg, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (*domain.ChatMessage, error) {
				return c.messages.Append(ctx, c.session.ID, c.viewer.ID, content)
			})
			if err != nil {
				return nil, err
			}
			msgs, catchErr := c.catchUp(ctx)
			return func() {
				if catchErr == nil {
					c.deliver(msgs)
				}
				c.deliverEarly(*msg)
				c.markRead()
			}, nil
		})
	})
	return nil
}

// CreatePoll creates the poll and its paired chat message in one store write.
func (c *Controller) CreatePoll(draft domain.PollDraft) error {
	if err := usecase.ValidateDraft(draft); err != nil {
		return c.reject(ComposerScope, err)
	}
	if err := c.ready(); err != nil {
		return err
	}
	draft.Options = append([]string(nil), draft.Options...)
	c.post(func() {
		if !c.composerOpen() {
			c.fail(ComposerScope, usecase.ErrAccessDenied)
			return
		}
		c.submit(ComposerScope, func(ctx context.Context) (func(), error) {
			msg, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (*domain.ChatMessage, error) {
				return c.polls.StartPoll(ctx, c.session.ID, c.viewer.ID, draft)
			})
			if err != nil {
				return nil, err
			}
			pollID := msg.PollID

			seq := c.readSeq.Add(1)
			snapshot, snapErr := c.fetchSnapshot(ctx, pollID)
			if snapErr != nil {
				c.log.WithError(snapErr).WithField("poll", pollID).Warn("could not load created poll")
			}
			var pinned []string
			var pinnedErr error
			if draft.Pinned {
				pinned, pinnedErr = c.listPinned(ctx)
			}
			msgs, catchErr := c.catchUp(ctx)

			return func() {
				if catchErr == nil {
					c.deliver(msgs)
				}
				c.deliverEarly(*msg)
				c.registry.track(pollID)
				if snapErr == nil {
					c.registry.install(pollID, snapshot, seq)
				}
				c.renderPoll(pollID)
				if draft.Pinned && pinnedErr == nil {
					c.pinned = pinned
					c.renderPinned()
				}
				c.markRead()
			}, nil
		})
	})
	return nil
}

// ToggleOption flips one option in the viewer's local selection and marks
// the view dirty. For single-select polls the option replaces the selection.
func (c *Controller) ToggleOption(pollID, optionID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		e, err := c.editable(pollID, optionID)
		if err != nil {
			c.fail(PollScope(pollID), err)
			return
		}
		selection := Reconcile(e.snapshot, e.state)
		switch {
		case selection.Has(optionID):
			delete(selection, optionID)
		case e.snapshot.AllowMulti:
			selection[optionID] = struct{}{}
		default:
			selection = domain.NewOptionSet(optionID)
		}
		c.setPending(pollID, e, selection)
	})
	return nil
}

// Select replaces the viewer's local selection and marks the view dirty.
func (c *Controller) Select(pollID string, optionIDs []string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		e, err := c.editable(pollID, optionIDs...)
		if err != nil {
			c.fail(PollScope(pollID), err)
			return
		}
		if !e.snapshot.AllowMulti && len(domain.NewOptionSet(optionIDs...)) > 1 {
			c.fail(PollScope(pollID), fmt.Errorf("%w: poll allows a single option", usecase.ErrInvalidVote))
			return
		}
		c.setPending(pollID, e, domain.NewOptionSet(optionIDs...))
	})
	return nil
}

// ClosePollView drops the view's local edits.
func (c *Controller) ClosePollView(pollID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		e, ok := c.registry.get(pollID)
		if !ok {
			return
		}
		e.state = domain.PollViewState{}
		c.renderPoll(pollID)
	})
	return nil
}

func (c *Controller) Vote(pollID string, optionIDs []string) error {
	if err := c.ready(); err != nil {
		return err
	}
	optionIDs = append([]string(nil), optionIDs...)
	c.post(func() {
		e, ok := c.registry.get(pollID)
		if !ok || e.snapshot == nil {
			c.fail(PollScope(pollID), ErrUnknownPoll)
			return
		}
		allowMulti := e.snapshot.AllowMulti
		if err := usecase.ValidateSelection(allowMulti, optionIDs); err != nil {
			c.fail(PollScope(pollID), err)
			return
		}
		c.submitPollWrite(pollID, true, false, func(ctx context.Context) error {
			return c.polls.Vote(ctx, pollID, c.viewer.ID, allowMulti, optionIDs)
		})
	})
	return nil
}

// VoteSelection submits the viewer's current local selection, an empty one clears the vote.
func (c *Controller) VoteSelection(pollID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		e, ok := c.registry.get(pollID)
		if !ok || e.snapshot == nil {
			c.fail(PollScope(pollID), ErrUnknownPoll)
			return
		}
		selection := Reconcile(e.snapshot, e.state).Sorted()
		allowMulti := e.snapshot.AllowMulti
		if err := usecase.ValidateSelection(allowMulti, selection); err != nil {
			c.fail(PollScope(pollID), err)
			return
		}
		c.submitPollWrite(pollID, true, false, func(ctx context.Context) error {
			return c.polls.Vote(ctx, pollID, c.viewer.ID, allowMulti, selection)
		})
	})
	return nil
}

func (c *Controller) ClearVote(pollID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		if _, ok := c.registry.get(pollID); !ok {
			c.fail(PollScope(pollID), ErrUnknownPoll)
			return
		}
		c.submitPollWrite(pollID, true, false, func(ctx context.Context) error {
			return c.polls.ClearVote(ctx, pollID, c.viewer.ID)
		})
	})
	return nil
}

// AddOption uses the privileged path when the poll does not accept options
// from everyone, the store decides whether the viewer qualifies.
func (c *Controller) AddOption(pollID, text string) error {
	if strings.TrimSpace(text) == "" {
		return c.reject(PollScope(pollID), fmt.Errorf("%w: empty option", usecase.ErrValidation))
	}
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		e, ok := c.registry.get(pollID)
		if !ok || e.snapshot == nil {
			c.fail(PollScope(pollID), ErrUnknownPoll)
			return
		}
		privileged := !e.snapshot.AllowAddOptions
		c.submitPollWrite(pollID, true, false, func(ctx context.Context) error {
			var err error
			if privileged {
				_, err = c.polls.AddOptionPrivileged(ctx, pollID, c.viewer.ID, text)
			} else {
				_, err = c.polls.AddOption(ctx, pollID, c.viewer.ID, text)
			}
			return err
		})
	})
	return nil
}

func (c *Controller) TogglePin(pollID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		e, ok := c.registry.get(pollID)
		if !ok || e.snapshot == nil {
			c.fail(PollScope(pollID), ErrUnknownPoll)
			return
		}
		pinned := !e.snapshot.IsPinned
		c.submitPollWrite(pollID, false, true, func(ctx context.Context) error {
			return c.polls.SetPinned(ctx, pollID, c.viewer.ID, pinned)
		})
	})
	return nil
}

func (c *Controller) ClosePoll(pollID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.post(func() {
		if _, ok := c.registry.get(pollID); !ok {
			c.fail(PollScope(pollID), ErrUnknownPoll)
			return
		}
		c.submitPollWrite(pollID, false, false, func(ctx context.Context) error {
			return c.polls.Close(ctx, pollID, c.viewer.ID)
		})
	})
	return nil
}

func (c *Controller) ready() error {
	switch c.State() {
	case StateActive:
		return nil
	case StateInit:
		return ErrNotStarted
	default:
		return ErrStopped
	}
}

// reject surfaces a client-side validation error and returns it.
// reject shows a synchronous validation error and returns it. The returned
// error reports Surfaced when it also reached the Renderer.
func (c *Controller) reject(scope Scope, err error) error {
	if c.State() != StateActive {
		return err
	}
	c.post(func() { c.fail(scope, err) })
	return &surfacedError{err: err}
}

type surfacedError struct{ err error }

func (e *surfacedError) Error() string { return e.err.Error() }
func (e *surfacedError) Unwrap() error { return e.err }

// Surfaced reports whether an error returned by an intent was already passed
// to Renderer.ShowError, so the caller should not print it again.
func Surfaced(err error) bool {
	var s *surfacedError
	return errors.As(err, &s)
}

func (c *Controller) fail(scope Scope, err error) {
	entry := c.log.WithError(err).WithField("scope", scope)
	if usecase.IsTransient(err) {
		entry.Warn("action failed")
	} else {
		entry.Debug("action rejected")
	}
	c.renderer.ShowError(scope, Describe(err))
}

func (c *Controller) composerOpen() bool {
	return c.composer == nil || *c.composer
}

// submit disables the scope's input and runs work on the pool. The returned
// apply func is run on the loop goroutine if the controller is still live.
func (c *Controller) submit(scope Scope, work func(ctx context.Context) (func(), error)) {
	c.renderer.SetBusy(scope, true)
	err := c.pool.trySubmit(func(ctx context.Context) {
		apply, err := work(ctx)
		c.post(func() {
			c.renderer.SetBusy(scope, false)
			if err != nil {
				c.fail(scope, err)
				return
			}
			apply()
		})
	})
	if err != nil {
		c.renderer.SetBusy(scope, false)
		c.fail(scope, err)
	}
}

// submitPollWrite runs a write against one poll and then trusts the fresh
// snapshot. clearDirty drops the viewer's pending selection on success.
func (c *Controller) submitPollWrite(pollID string, clearDirty, refreshPinned bool, write func(ctx context.Context) error) {
	c.submit(PollScope(pollID), func(ctx context.Context) (func(), error) {
		if _, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, write(ctx)
		}); err != nil {
			return nil, err
		}

		seq := c.readSeq.Add(1)
		snapshot, snapErr := c.fetchSnapshot(ctx, pollID)
		if snapErr != nil {
			c.log.WithError(snapErr).WithField("poll", pollID).Warn("could not refresh poll after write")
		}
		var pinned []string
		var pinnedErr error
		if refreshPinned {
			pinned, pinnedErr = c.listPinned(ctx)
		}

		return func() {
			e := c.registry.track(pollID)
			if clearDirty {
				e.state = domain.PollViewState{}
			}
			if snapErr == nil {
				c.registry.install(pollID, snapshot, seq)
			}
			c.renderPoll(pollID)
			if refreshPinned && pinnedErr == nil {
				c.pinned = pinned
			}
			if refreshPinned || c.isPinned(pollID) {
				c.renderPinned()
			}
		}, nil
	})
}

// catchUp reads everything after the current cursor. Used after the viewer's
// own append so that advancing past the new message skips nothing.
func (c *Controller) catchUp(ctx context.Context) ([]domain.ChatMessage, error) {
	var cursor int64
	if err := c.call(func() { cursor = c.cursor }); err != nil {
		return nil, err
	}
	return storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) ([]domain.ChatMessage, error) {
		return c.messages.ListAfter(ctx, c.session.ID, cursor)
	})
}

func (c *Controller) listPinned(ctx context.Context) ([]string, error) {
	return storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) ([]string, error) {
		return c.polls.ListPinnedPollIDs(ctx, c.session.ID)
	})
}

func (c *Controller) editable(pollID string, optionIDs ...string) (*pollEntry, error) {
	e, ok := c.registry.get(pollID)
	if !ok || e.snapshot == nil {
		return nil, ErrUnknownPoll
	}
	if !e.snapshot.IsOpen {
		return nil, usecase.ErrPollClosed
	}
	known := make(domain.OptionSet, len(e.snapshot.Options))
	for _, option := range e.snapshot.Options {
		known[option.ID] = struct{}{}
	}
	for _, id := range optionIDs {
		if !known.Has(id) {
			return nil, usecase.ErrNoSuchOption
		}
	}
	return e, nil
}

func (c *Controller) setPending(pollID string, e *pollEntry, selection domain.OptionSet) {
	e.state = domain.PollViewState{
		Dirty:            true,
		PendingSelection: selection,
	}
	c.renderPoll(pollID)
	if c.isPinned(pollID) {
		c.renderPinned()
	}
}

// Describe turns an action error into the inline message shown to the viewer.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, usecase.ErrAccessDenied):
		return "You are not a participant of this outing"
	case errors.Is(err, usecase.ErrUnauthorized):
		return "Only the organizer, the poll author or an admin can do this"
	case errors.Is(err, usecase.ErrPollClosed):
		return "Poll is closed"
	case errors.Is(err, usecase.ErrInvalidVote):
		return "This selection is not valid for this poll"
	case errors.Is(err, usecase.ErrNoSuchOption):
		return "There is no such option in this poll"
	case errors.Is(err, usecase.ErrValidation):
		return "Check your input: text must not be empty and a poll needs at least 2 options"
	case errors.Is(err, usecase.ErrPollNotFound), errors.Is(err, ErrUnknownPoll):
		return "There is no such poll in this feed"
	case errors.Is(err, usecase.ErrTimeout):
		return "The server took too long to answer. Try again"
	case errors.Is(err, ErrBusy):
		return "Too many actions in progress. Try again"
	case errors.Is(err, ErrStopped):
		return "The chat is closed"
	default:
		return "Something went wrong. Try again"
	}
}
