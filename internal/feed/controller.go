// Package feed drives a session's chat feed: it polls the message log and
// poll snapshots on a fixed interval, runs user actions on a bounded worker
// pool and hands merged results to a Renderer on a single loop goroutine.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	defaultInterval     = 3 * time.Second
	defaultStoreTimeout = 10 * time.Second
	defaultWorkers      = 4
	defaultQueue        = 16
)

var (
	ErrStopped     = errors.New("feed controller is stopped")
	ErrNotStarted  = errors.New("feed controller is not started")
	ErrBusy        = errors.New("too many actions in flight")
	ErrTickSkipped = errors.New("previous tick still in flight")
	ErrUnknownPoll = errors.New("poll is not in this feed")
)

type MessageLog interface {
	Append(ctx context.Context, sessionID, senderID, content string) (*domain.ChatMessage, error)
	ListAll(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	ListAfter(ctx context.Context, sessionID string, cursor int64) ([]domain.ChatMessage, error)
	MarkReadUpTo(ctx context.Context, sessionID, userID string, messageID int64) error
}

type PollStore interface {
	// StartPoll creates the poll together with its POLL message.
	StartPoll(ctx context.Context, sessionID, creatorID string, draft domain.PollDraft) (*domain.ChatMessage, error)
	AddOption(ctx context.Context, pollID, userID, text string) (*domain.PollOption, error)
	AddOptionPrivileged(ctx context.Context, pollID, userID, text string) (*domain.PollOption, error)
	Vote(ctx context.Context, pollID, userID string, allowMulti bool, optionIDs []string) error
	ClearVote(ctx context.Context, pollID, userID string) error
	SetPinned(ctx context.Context, pollID, actorID string, pinned bool) error
	Close(ctx context.Context, pollID, actorID string) error
	GetSnapshot(ctx context.Context, pollID, viewerID string) (*domain.PollSnapshot, error)
	ListPinnedPollIDs(ctx context.Context, sessionID string) ([]string, error)
}

type AccessGate interface {
	CanAccess(ctx context.Context, sessionID, userID string) (bool, error)
	IsPrivileged(ctx context.Context, sessionID, pollID, userID string) (bool, error)
}

type Config struct {
	// Interval between ticks.
	Interval time.Duration
	// StoreTimeout bounds every single store call.
	StoreTimeout time.Duration
	// Workers and Queue size the pool running user actions.
	Workers int
	Queue   int
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Queue <= 0 {
		c.Queue = defaultQueue
	}
}

type State int32

const (
	StateInit State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateActive:
		return "ACTIVE"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Controller - polling state machine of one session feed as seen by one viewer.
type Controller struct {
	cfg      Config
	session  domain.Session
	viewer   domain.User
	messages MessageLog
	polls    PollStore
	access   AccessGate
	renderer Renderer
	log      *log.Entry

	lifeMu   sync.Mutex
	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
	inbox    *mailbox
	done     chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	pool     *workerPool
	sched    *cron.Cron

	ticking atomic.Bool
	tickSeq atomic.Uint64
	readSeq atomic.Uint64

	// Owned by the loop goroutine.
	cursor     int64
	lastMarked int64
	early      map[int64]struct{}
	registry   *registry
	pinned     []string
	composer   *bool
}

func NewController(
	cfg Config,
	session domain.Session,
	viewer domain.User,
	messages MessageLog,
	polls PollStore,
	access AccessGate,
	renderer Renderer,
) (*Controller, error) {
	if session.ID == "" {
		return nil, errors.New("feed: session id must not be empty")
	}
	if viewer.ID == "" {
		return nil, errors.New("feed: viewer id must not be empty")
	}
	if messages == nil {
		return nil, errors.New("feed: message log must not be nil")
	}
	if polls == nil {
		return nil, errors.New("feed: poll store must not be nil")
	}
	if access == nil {
		return nil, errors.New("feed: access gate must not be nil")
	}
	if renderer == nil {
		return nil, errors.New("feed: renderer must not be nil")
	}
	cfg.normalize()

	return &Controller{
		cfg:      cfg,
		session:  session,
		viewer:   viewer,
		messages: messages,
		polls:    polls,
		access:   access,
		renderer: renderer,
		log: log.WithFields(log.Fields{
			"component": "feed",
			"session":   session.ID,
			"viewer":    viewer.ID,
		}),
		inbox:    newMailbox(),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		early:    make(map[int64]struct{}),
		registry: newRegistry(),
	}, nil
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start performs the initial load synchronously and then schedules ticks.
// Only a failed history load leaves the controller stopped, other failures
// are logged and retried by the next tick.
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.State() == StateStopped {
		return ErrStopped
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("feed: controller already started (%s)", c.State())
	}
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.pool = newWorkerPool(c.ctx, c.cfg.Workers, c.cfg.Queue)
	c.sched = cron.New(
		cron.WithLogger(cronLogger{entry: c.log}),
		cron.WithChain(cron.Recover(cronLogger{entry: c.log}), cron.SkipIfStillRunning(cronLogger{entry: c.log})),
	)
	_, err := c.sched.AddJob("@every "+c.cfg.Interval.String(), cron.FuncJob(func() {
		_ = c.Tick(c.ctx)
	}))
	go c.loop()
	if err != nil {
		c.stop()
		return fmt.Errorf("feed: schedule ticks: %w", err)
	}

	err = c.refresh(ctx, true)
	switch {
	case errors.Is(err, errHistory), errors.Is(err, ErrStopped):
		c.stop()
		return fmt.Errorf("feed: initial load: %w", err)
	case err != nil:
		c.log.WithError(err).Warn("initial load is incomplete")
	}
	c.state.Store(int32(StateActive))
	c.sched.Start()
	c.log.WithField("interval", c.cfg.Interval).Info("feed is active")
	return nil
}

// Stop cancels the timer and in-flight store calls and tears the registry
// down. It is safe to call more than once, but not from a Renderer callback.
func (c *Controller) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	c.stop()
}

func (c *Controller) stop() {
	c.stopOnce.Do(func() {
		c.state.Store(int32(StateStopped))
		if c.cancel != nil {
			c.cancel()
		}
		if c.sched != nil {
			<-c.sched.Stop().Done()
		}
		if c.pool != nil {
			c.pool.stop()
		}
		close(c.done)
		if c.started.Load() {
			<-c.loopDone
		}
		c.registry.reset()
		c.log.Info("feed is stopped")
	})
}

func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			return
		case <-c.inbox.signal:
			for _, fn := range c.inbox.drain() {
				fn()
			}
		}
	}
}

// live is checked by every completion before it touches render state.
func (c *Controller) live() bool {
	return c.State() != StateStopped
}

// post schedules fn on the loop goroutine. fn is skipped once the controller stops.
func (c *Controller) post(fn func()) {
	c.inbox.push(func() {
		if !c.live() {
			return
		}
		fn()
	})
}

// call runs fn on the loop goroutine and waits for it.
// Must not be used from the loop goroutine.
func (c *Controller) call(fn func()) error {
	finished := make(chan struct{})
	c.inbox.push(func() {
		defer close(finished)
		if c.live() {
			fn()
		}
	})
	select {
	case <-finished:
	case <-c.done:
	}
	if !c.live() {
		return ErrStopped
	}
	return nil
}

func storeCall[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, usecase.ErrTimeout) {
		err = fmt.Errorf("%w: %w", usecase.ErrTimeout, err)
	}
	return v, err
}

// deliver appends messages the viewer has not seen yet and advances the cursor.
// Runs on the loop goroutine.
func (c *Controller) deliver(msgs []domain.ChatMessage) {
	for _, msg := range msgs {
		if msg.ID <= c.cursor {
			continue
		}
		if _, seen := c.early[msg.ID]; !seen {
			c.renderer.AppendMessage(msg)
		}
		c.cursor = msg.ID
		if msg.Kind == domain.MessagePoll && msg.PollID != "" {
			c.registry.track(msg.PollID)
		}
	}
	for id := range c.early {
		if id <= c.cursor {
			delete(c.early, id)
		}
	}
}

// deliverEarly renders one of the viewer's own messages before the messages
// preceding it are known. The cursor stays put so nothing is skipped.
func (c *Controller) deliverEarly(msg domain.ChatMessage) {
	if msg.ID <= c.cursor {
		return
	}
	if _, seen := c.early[msg.ID]; seen {
		return
	}
	c.early[msg.ID] = struct{}{}
	c.renderer.AppendMessage(msg)
	if msg.Kind == domain.MessagePoll && msg.PollID != "" {
		c.registry.track(msg.PollID)
	}
}

func (c *Controller) setComposer(enabled bool) {
	if c.composer != nil && *c.composer == enabled {
		return
	}
	c.composer = &enabled
	c.renderer.SetComposerEnabled(enabled)
}

func (c *Controller) renderPoll(pollID string) {
	if view, ok := c.registry.view(pollID); ok {
		c.renderer.RenderPoll(view)
	}
}

func (c *Controller) renderPinned() {
	views := make([]PollView, 0, len(c.pinned))
	for _, id := range c.pinned {
		if view, ok := c.registry.view(id); ok {
			views = append(views, view)
		}
	}
	c.renderer.RenderPinned(views)
}

func (c *Controller) isPinned(pollID string) bool {
	for _, id := range c.pinned {
		if id == pollID {
			return true
		}
	}
	return false
}

// markRead is fire-and-forget, failures are logged and not retried.
func (c *Controller) markRead() {
	if c.cursor <= c.lastMarked {
		return
	}
	cursor := c.cursor
	c.lastMarked = cursor
	err := c.pool.trySubmit(func(ctx context.Context) {
		if _, err := storeCall(ctx, c.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.messages.MarkReadUpTo(ctx, c.session.ID, c.viewer.ID, cursor)
		}); err != nil {
			c.log.WithError(err).WithField("cursor", cursor).Debug("could not mark messages read")
		}
	})
	if err != nil {
		c.log.WithError(err).Debug("read marker skipped")
	}
}
