package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

// errHistory marks a failed message read, the only failure that aborts the initial load.
var errHistory = errors.New("could not load message history")

type fetchedSnapshot struct {
	pollID   string
	snapshot *domain.PollSnapshot
}

type tickResult struct {
	readSeq   uint64
	messages  []domain.ChatMessage
	snapshots []fetchedSnapshot
	pinned    []string
	pinnedOK  bool
	canAccess *bool
}

// Tick runs one polling round. Failures are logged and returned, the loop
// keeps going and the next tick retries. Overlapping ticks are skipped.
func (c *Controller) Tick(ctx context.Context) error {
	if c.State() != StateActive {
		if c.State() == StateInit {
			return ErrNotStarted
		}
		return ErrStopped
	}
	if !c.ticking.CompareAndSwap(false, true) {
		c.log.Debug("tick skipped, previous one is still running")
		return ErrTickSkipped
	}
	defer c.ticking.Store(false)

	seq := c.tickSeq.Add(1)
	if err := c.refresh(ctx, false); err != nil {
		if errors.Is(err, ErrStopped) {
			return err
		}
		c.log.WithError(err).WithField("tick", seq).Warn("tick failed")
		return err
	}
	return nil
}

// refresh reads messages, tracked poll snapshots, the pinned list and the
// access state, then applies whatever succeeded on the loop goroutine.
// On the initial load a failed message read returns before anything is applied.
func (c *Controller) refresh(ctx context.Context, initial bool) error {
	var cursor int64
	var tracked []string
	if err := c.call(func() {
		cursor = c.cursor
		tracked = c.registry.ids()
	}); err != nil {
		return err
	}

	res := tickResult{readSeq: c.readSeq.Add(1)}
	var errs []error

	msgs, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) ([]domain.ChatMessage, error) {
		if initial {
			return c.messages.ListAll(ctx, c.session.ID)
		}
		return c.messages.ListAfter(ctx, c.session.ID, cursor)
	})
	if err != nil {
		if initial {
			return fmt.Errorf("%w: %w", errHistory, err)
		}
		errs = append(errs, fmt.Errorf("list messages: %w", err))
	}
	res.messages = msgs

	seen := make(map[string]struct{}, len(tracked))
	for _, id := range tracked {
		seen[id] = struct{}{}
	}
	for _, msg := range msgs {
		if msg.Kind != domain.MessagePoll || msg.PollID == "" {
			continue
		}
		if _, ok := seen[msg.PollID]; !ok {
			seen[msg.PollID] = struct{}{}
			tracked = append(tracked, msg.PollID)
		}
	}

	pinned, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) ([]string, error) {
		return c.polls.ListPinnedPollIDs(ctx, c.session.ID)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("list pinned polls: %w", err))
	} else {
		res.pinned = pinned
		res.pinnedOK = true
		for _, id := range pinned {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				tracked = append(tracked, id)
			}
		}
	}

	for _, id := range tracked {
		snapshot, err := c.fetchSnapshot(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot of poll %s: %w", id, err))
			continue
		}
		res.snapshots = append(res.snapshots, fetchedSnapshot{pollID: id, snapshot: snapshot})
	}

	ok, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (bool, error) {
		return c.access.CanAccess(ctx, c.session.ID, c.viewer.ID)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("check access: %w", err))
	} else {
		res.canAccess = &ok
	}

	if err = c.call(func() { c.applyTick(res) }); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (c *Controller) fetchSnapshot(ctx context.Context, pollID string) (*domain.PollSnapshot, error) {
	return storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (*domain.PollSnapshot, error) {
		return c.polls.GetSnapshot(ctx, pollID, c.viewer.ID)
	})
}

// applyTick runs on the loop goroutine.
func (c *Controller) applyTick(res tickResult) {
	c.deliver(res.messages)

	for _, s := range res.snapshots {
		c.registry.install(s.pollID, s.snapshot, res.readSeq)
	}
	for _, id := range c.registry.ids() {
		c.renderPoll(id)
	}

	if res.pinnedOK {
		c.pinned = res.pinned
		c.renderPinned()
	}
	if res.canAccess != nil {
		c.setComposer(*res.canAccess)
	}
	c.markRead()
}
