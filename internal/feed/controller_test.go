package feed_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/feed"
	"github.com/Xausdorf/outing-chat/internal/repository/memory"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	session = "s1"
)

// slowCfg leaves room for a held store call.
var slowCfg = feed.Config{Interval: time.Hour, StoreTimeout: 5 * time.Second, Workers: 2, Queue: 8}

var errStoreDown = usecase.Unavailable("select", errors.New("connection refused"))

type recorder struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	polls    map[string]feed.PollView
	pinned   [][]string
	composer []bool
	busy     map[feed.Scope]bool
	errors   []string
}

func newRecorder() *recorder {
	return &recorder{
		polls: make(map[string]feed.PollView),
		busy:  make(map[feed.Scope]bool),
	}
}

func (r *recorder) AppendMessage(msg domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) RenderPoll(view feed.PollView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[view.Snapshot.PollID] = view
}

func (r *recorder) RenderPinned(views []feed.PollView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(views))
	for i, view := range views {
		ids[i] = view.Snapshot.PollID
	}
	r.pinned = append(r.pinned, ids)
}

func (r *recorder) SetComposerEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composer = append(r.composer, enabled)
}

func (r *recorder) SetBusy(scope feed.Scope, busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy[scope] = busy
}

func (r *recorder) ShowError(scope feed.Scope, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, string(scope)+": "+message)
}

func (r *recorder) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]string, len(r.messages))
	for i, msg := range r.messages {
		res[i] = msg.Content
	}
	return res
}

func (r *recorder) messageIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]int64, len(r.messages))
	for i, msg := range r.messages {
		res[i] = msg.ID
	}
	return res
}

func (r *recorder) poll(id string) (feed.PollView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.polls[id]
	return view, ok
}

func (r *recorder) pollIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, msg := range r.messages {
		if msg.Kind == domain.MessagePoll {
			ids = append(ids, msg.PollID)
		}
	}
	return ids
}

func (r *recorder) lastPinned() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pinned) == 0 {
		return nil
	}
	return r.pinned[len(r.pinned)-1]
}

func (r *recorder) lastComposer() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.composer) == 0 {
		return false, false
	}
	return r.composer[len(r.composer)-1], true
}

func (r *recorder) hasError(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) idle(scope feed.Scope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.busy[scope]
}

type env struct {
	db       *memory.DB
	access   *usecase.Access
	messages *usecase.Messages
	polls    *usecase.Polls
}

func newEnv() env {
	db := memory.New()
	db.PutSession(domain.Session{ID: session, OwnerUserID: "alice", Title: "Picnic"})
	db.PutUser(domain.User{ID: "alice", Role: domain.RoleMember, DisplayName: "Alice"})
	db.PutUser(domain.User{ID: "bob", Role: domain.RoleMember, DisplayName: "Bob"})
	db.PutUser(domain.User{ID: "carol", Role: domain.RoleMember, DisplayName: "Carol"})
	db.PutParticipation(domain.Participation{SessionID: session, UserID: "bob", Status: domain.ParticipationAccepted})

	access := usecase.NewAccess(db.Sessions(), db.Users(), db.Polls())
	return env{
		db:       db,
		access:   access,
		messages: usecase.NewMessages(access, db.Messages(), db.Polls(), db.Markers()),
		polls:    usecase.NewPolls(access, db.Polls(), db.Votes(), db.Users()),
	}
}

type opts struct {
	messages feed.MessageLog
	polls    feed.PollStore
	cfg      feed.Config
}

func (e env) controller(t *testing.T, viewer string, o opts) (*feed.Controller, *recorder) {
	t.Helper()
	if o.messages == nil {
		o.messages = e.messages
	}
	if o.polls == nil {
		o.polls = e.polls
	}
	if o.cfg.Interval == 0 {
		o.cfg = feed.Config{Interval: time.Hour, StoreTimeout: time.Second, Workers: 2, Queue: 8}
	}
	r := newRecorder()
	c, err := feed.NewController(o.cfg, domain.Session{ID: session, OwnerUserID: "alice"}, domain.User{ID: viewer}, o.messages, o.polls, e.access, r)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c, r
}

func (e env) started(t *testing.T, viewer string, o opts) (*feed.Controller, *recorder) {
	t.Helper()
	c, r := e.controller(t, viewer, o)
	require.NoError(t, c.Start(context.Background()))
	return c, r
}

func (e env) say(t *testing.T, sender, text string) *domain.ChatMessage {
	t.Helper()
	msg, err := e.messages.Append(context.Background(), session, sender, text)
	require.NoError(t, err)
	return msg
}

func optionID(t *testing.T, view feed.PollView, text string) string {
	t.Helper()
	for _, option := range view.Snapshot.Options {
		if option.Text == text {
			return option.ID
		}
	}
	t.Fatalf("option %q not found", text)
	return ""
}

func option(view feed.PollView, text string) domain.OptionResult {
	for _, o := range view.Snapshot.Options {
		if o.Text == text {
			return o
		}
	}
	return domain.OptionResult{}
}

type flakyPolls struct {
	feed.PollStore
	down atomic.Bool
}

func (f *flakyPolls) GetSnapshot(ctx context.Context, pollID, viewerID string) (*domain.PollSnapshot, error) {
	if f.down.Load() {
		return nil, errStoreDown
	}
	return f.PollStore.GetSnapshot(ctx, pollID, viewerID)
}

type blockingPolls struct {
	feed.PollStore
	release chan struct{}
	entered chan struct{}
}

func (b *blockingPolls) Vote(ctx context.Context, pollID, userID string, allowMulti bool, optionIDs []string) error {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.PollStore.Vote(ctx, pollID, userID, allowMulti, optionIDs)
}

type downHistory struct {
	feed.MessageLog
}

func (downHistory) ListAll(context.Context, string) ([]domain.ChatMessage, error) {
	return nil, errStoreDown
}

// slowLog blocks one ListAfter call once armed.
type slowLog struct {
	feed.MessageLog
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowLog) ListAfter(ctx context.Context, sessionID string, cursor int64) ([]domain.ChatMessage, error) {
	if s.armed.CompareAndSwap(true, false) {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.MessageLog.ListAfter(ctx, sessionID, cursor)
}

// slowSnapshots reads one snapshot once armed and holds it back until released.
type slowSnapshots struct {
	feed.PollStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowSnapshots) GetSnapshot(ctx context.Context, pollID, viewerID string) (*domain.PollSnapshot, error) {
	if !s.armed.CompareAndSwap(true, false) {
		return s.PollStore.GetSnapshot(ctx, pollID, viewerID)
	}
	snapshot, err := s.PollStore.GetSnapshot(ctx, pollID, viewerID)
	s.entered <- struct{}{}
	<-s.release
	return snapshot, err
}

// missingPolls answers ErrPollNotFound for one poll, as if its row was lost.
type missingPolls struct {
	feed.PollStore
	id string
}

func (m missingPolls) GetSnapshot(ctx context.Context, pollID, viewerID string) (*domain.PollSnapshot, error) {
	if pollID == m.id {
		return nil, usecase.ErrPollNotFound
	}
	return m.PollStore.GetSnapshot(ctx, pollID, viewerID)
}

type failingStart struct {
	feed.PollStore
}

func (failingStart) StartPoll(context.Context, string, string, domain.PollDraft) (*domain.ChatMessage, error) {
	return nil, errStoreDown
}

func (e env) startPoll(t *testing.T, creator string, draft domain.PollDraft) string {
	t.Helper()
	msg, err := e.polls.StartPoll(context.Background(), session, creator, draft)
	require.NoError(t, err)
	return msg.PollID
}

func TestNewController_ValidatesDependencies(t *testing.T) {
	e := newEnv()
	s, v := domain.Session{ID: session}, domain.User{ID: "bob"}
	_, err := feed.NewController(feed.Config{}, domain.Session{}, v, e.messages, e.polls, e.access, newRecorder())
	require.Error(t, err)
	_, err = feed.NewController(feed.Config{}, s, domain.User{}, e.messages, e.polls, e.access, newRecorder())
	require.Error(t, err)
	_, err = feed.NewController(feed.Config{}, s, v, e.messages, e.polls, e.access, nil)
	require.Error(t, err)
}

func TestStart_LoadsHistoryAndComposer(t *testing.T) {
	e := newEnv()
	e.say(t, "alice", "one")
	last := e.say(t, "bob", "two")

	c, r := e.started(t, "bob", opts{})
	require.Equal(t, feed.StateActive, c.State())
	require.Equal(t, []string{"one", "two"}, r.contents())
	enabled, ok := r.lastComposer()
	require.True(t, ok)
	require.True(t, enabled)

	require.Eventually(t, func() bool {
		return e.db.ReadMarker(session, "bob") == last.ID
	}, waitFor, tick)

	_, outsider := e.started(t, "carol", opts{})
	enabled, ok = outsider.lastComposer()
	require.True(t, ok)
	require.False(t, enabled)
	require.Equal(t, []string{"one", "two"}, outsider.contents())
}

func TestStart_FailureLeavesControllerStopped(t *testing.T) {
	e := newEnv()
	e.say(t, "alice", "hello")
	c, r := e.controller(t, "bob", opts{messages: downHistory{MessageLog: e.messages}})

	err := c.SendText("hi")
	require.ErrorIs(t, err, feed.ErrNotStarted)
	require.False(t, feed.Surfaced(err))
	require.ErrorIs(t, c.Tick(context.Background()), feed.ErrNotStarted)

	err = c.Start(context.Background())
	require.ErrorIs(t, err, usecase.ErrStoreUnavailable)
	require.Equal(t, feed.StateStopped, c.State())
	require.ErrorIs(t, c.SendText("hi"), feed.ErrStopped)
	require.Empty(t, r.contents())
	_, ok := r.lastComposer()
	require.False(t, ok)
}

func TestStart_MissingPollIsNotFatal(t *testing.T) {
	e := newEnv()
	e.say(t, "alice", "hello")
	lost := e.startPoll(t, "alice", domain.PollDraft{Question: "Lieu?", Pinned: true, Options: []string{"Cafe", "Parc"}})
	kept := e.startPoll(t, "alice", domain.PollDraft{Question: "Quand?", Options: []string{"Midi", "Soir"}})

	c, r := e.started(t, "bob", opts{polls: missingPolls{PollStore: e.polls, id: lost}})
	require.Equal(t, feed.StateActive, c.State())
	require.Equal(t, []string{"hello", "Lieu?", "Quand?"}, r.contents())
	_, ok := r.poll(lost)
	require.False(t, ok)
	_, ok = r.poll(kept)
	require.True(t, ok)
	enabled, ok := r.lastComposer()
	require.True(t, ok)
	require.True(t, enabled)

	err := c.Tick(context.Background())
	require.ErrorIs(t, err, usecase.ErrPollNotFound)
	require.Equal(t, feed.StateActive, c.State())
}

func TestStart_AccessFailureIsNotFatal(t *testing.T) {
	e := newEnv()
	r := newRecorder()
	c, err := feed.NewController(feed.Config{Interval: time.Hour}, domain.Session{ID: "missing"}, domain.User{ID: "bob"}, e.messages, e.polls, e.access, r)
	require.NoError(t, err)
	t.Cleanup(c.Stop)

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, feed.StateActive, c.State())
	require.ErrorIs(t, c.Tick(context.Background()), usecase.ErrSessionNotFound)
}

func TestStart_AfterStopIsRejected(t *testing.T) {
	e := newEnv()
	c, r := e.controller(t, "bob", opts{})
	c.Stop()

	require.ErrorIs(t, c.Start(context.Background()), feed.ErrStopped)
	require.Equal(t, feed.StateStopped, c.State())
	require.ErrorIs(t, c.Tick(context.Background()), feed.ErrStopped)
	require.Empty(t, r.contents())
}

func TestStop_IsIdempotentAndRejectsIntents(t *testing.T) {
	e := newEnv()
	c, _ := e.started(t, "bob", opts{})
	c.Stop()
	c.Stop()
	require.Equal(t, feed.StateStopped, c.State())
	require.ErrorIs(t, c.Tick(context.Background()), feed.ErrStopped)
	require.ErrorIs(t, c.SendText("hi"), feed.ErrStopped)
	require.ErrorIs(t, c.Vote("p", []string{"o"}), feed.ErrStopped)
	require.ErrorIs(t, c.Start(context.Background()), feed.ErrStopped)
}

func TestTick_AppendsOnlyNewMessages(t *testing.T) {
	e := newEnv()
	e.say(t, "alice", "one")
	c, r := e.started(t, "bob", opts{})

	e.say(t, "alice", "two")
	e.say(t, "bob", "three")
	require.NoError(t, c.Tick(context.Background()))
	require.NoError(t, c.Tick(context.Background()))
	require.Equal(t, []string{"one", "two", "three"}, r.contents())

	ids := r.messageIDs()
	for i := 1; i < len(ids); i++ {
		require.Less(t, ids[i-1], ids[i])
	}
}

func TestSendText_CatchesUpWithoutDuplicates(t *testing.T) {
	e := newEnv()
	c, r := e.started(t, "bob", opts{})

	e.say(t, "alice", "before mine")
	require.NoError(t, c.SendText("mine"))
	require.Eventually(t, func() bool {
		return len(r.contents()) == 2
	}, waitFor, tick)
	require.Equal(t, []string{"before mine", "mine"}, r.contents())

	require.NoError(t, c.Tick(context.Background()))
	require.Equal(t, []string{"before mine", "mine"}, r.contents())
	require.True(t, r.idle(feed.ComposerScope))
}

func TestSendText_Rejections(t *testing.T) {
	e := newEnv()
	c, r := e.started(t, "bob", opts{})
	err := c.SendText("   ")
	require.ErrorIs(t, err, usecase.ErrValidation)
	require.True(t, feed.Surfaced(err))
	require.Eventually(t, func() bool { return r.hasError("composer: Check your input") }, waitFor, tick)

	outsider, ro := e.started(t, "carol", opts{})
	require.NoError(t, outsider.SendText("let me in"))
	require.Eventually(t, func() bool { return ro.hasError("not a participant") }, waitFor, tick)

	all, err := e.messages.ListAll(context.Background(), session)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestPollFeed_DirtySelectionSurvivesTicks(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	owner, ro := e.started(t, "alice", opts{})
	viewer, rv := e.started(t, "bob", opts{})

	require.NoError(t, owner.CreatePoll(domain.PollDraft{Question: "Lieu?", Pinned: true, Options: []string{"Cafe", "Parc"}}))
	require.Eventually(t, func() bool { return len(ro.pollIDs()) == 1 }, waitFor, tick)
	pollID := ro.pollIDs()[0]
	require.Eventually(t, func() bool {
		_, ok := ro.poll(pollID)
		return ok && len(ro.lastPinned()) == 1
	}, waitFor, tick)
	require.Equal(t, []string{pollID}, ro.lastPinned())

	require.NoError(t, viewer.Tick(ctx))
	view, ok := rv.poll(pollID)
	require.True(t, ok)
	require.Equal(t, "Alice", view.Snapshot.CreatedByName)
	require.Equal(t, []string{pollID}, rv.lastPinned())
	cafe, parc := optionID(t, view, "Cafe"), optionID(t, view, "Parc")

	require.NoError(t, viewer.Vote(pollID, []string{cafe}))
	require.Eventually(t, func() bool {
		v, _ := rv.poll(pollID)
		return v.Selection.Has(cafe) && option(v, "Cafe").Votes == 1
	}, waitFor, tick)

	require.NoError(t, viewer.Select(pollID, []string{parc}))
	require.Eventually(t, func() bool {
		v, _ := rv.poll(pollID)
		return v.Dirty && v.Selection.Equal(domain.NewOptionSet(parc))
	}, waitFor, tick)

	require.NoError(t, e.polls.Vote(ctx, pollID, "alice", false, []string{cafe}))
	require.NoError(t, viewer.Tick(ctx))
	view, _ = rv.poll(pollID)
	require.True(t, view.Dirty)
	require.Equal(t, domain.NewOptionSet(parc), view.Selection)
	require.Equal(t, 2, option(view, "Cafe").Votes)
	require.Equal(t, domain.NewOptionSet(cafe), view.Snapshot.MyOptionIDs)

	require.NoError(t, viewer.VoteSelection(pollID))
	require.Eventually(t, func() bool {
		v, _ := rv.poll(pollID)
		return !v.Dirty && v.Selection.Equal(domain.NewOptionSet(parc)) && option(v, "Parc").Votes == 1
	}, waitFor, tick)
	view, _ = rv.poll(pollID)
	require.Equal(t, 1, option(view, "Cafe").Votes)
	require.Equal(t, 2, view.Snapshot.TotalVoters)
}

func TestPollFeed_LocalEdits(t *testing.T) {
	e := newEnv()
	pollID := e.startPoll(t, "alice", domain.PollDraft{Question: "Snacks?", AllowMulti: true, Options: []string{"Chips", "Fruit"}})

	c, r := e.started(t, "bob", opts{})
	view, ok := r.poll(pollID)
	require.True(t, ok)
	chips, fruit := optionID(t, view, "Chips"), optionID(t, view, "Fruit")

	require.NoError(t, c.ToggleOption(pollID, chips))
	require.NoError(t, c.ToggleOption(pollID, fruit))
	require.NoError(t, c.ToggleOption(pollID, chips))
	require.Eventually(t, func() bool {
		v, _ := r.poll(pollID)
		return v.Dirty && v.Selection.Equal(domain.NewOptionSet(fruit))
	}, waitFor, tick)

	require.NoError(t, c.ToggleOption(pollID, "nope"))
	require.Eventually(t, func() bool { return r.hasError("There is no such option") }, waitFor, tick)
	require.NoError(t, c.ToggleOption("unknown", chips))
	require.Eventually(t, func() bool { return r.hasError("poll:unknown: There is no such poll") }, waitFor, tick)

	require.NoError(t, c.ClosePollView(pollID))
	require.Eventually(t, func() bool {
		v, _ := r.poll(pollID)
		return !v.Dirty && len(v.Selection) == 0
	}, waitFor, tick)

	require.NoError(t, c.Select(pollID, []string{chips, fruit}))
	require.NoError(t, c.VoteSelection(pollID))
	require.Eventually(t, func() bool {
		v, _ := r.poll(pollID)
		return !v.Dirty && v.Snapshot.MyOptionIDs.Equal(domain.NewOptionSet(chips, fruit))
	}, waitFor, tick)

	require.NoError(t, c.ClearVote(pollID))
	require.Eventually(t, func() bool {
		v, _ := r.poll(pollID)
		return v.Snapshot.TotalVoters == 0 && len(v.Selection) == 0
	}, waitFor, tick)
}

func TestPollFeed_PrivilegedActions(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	owner, ro := e.started(t, "alice", opts{})
	viewer, rv := e.started(t, "bob", opts{})

	require.NoError(t, owner.CreatePoll(domain.PollDraft{Question: "Lieu?", Options: []string{"Cafe", "Parc"}}))
	require.Eventually(t, func() bool { return len(ro.pollIDs()) == 1 }, waitFor, tick)
	pollID := ro.pollIDs()[0]
	require.NoError(t, viewer.Tick(ctx))

	require.NoError(t, viewer.AddOption(pollID, "Plage"))
	require.Eventually(t, func() bool { return rv.hasError("Only the organizer") }, waitFor, tick)
	require.NoError(t, viewer.TogglePin(pollID))
	require.NoError(t, viewer.ClosePoll(pollID))

	require.Eventually(t, func() bool {
		_, ok := ro.poll(pollID)
		return ok
	}, waitFor, tick)
	require.NoError(t, owner.AddOption(pollID, "Plage"))
	require.Eventually(t, func() bool {
		v, _ := ro.poll(pollID)
		return len(v.Snapshot.Options) == 3
	}, waitFor, tick)

	require.NoError(t, owner.TogglePin(pollID))
	require.Eventually(t, func() bool { return len(ro.lastPinned()) == 1 }, waitFor, tick)

	require.NoError(t, owner.ClosePoll(pollID))
	require.Eventually(t, func() bool {
		v, _ := ro.poll(pollID)
		return !v.Snapshot.IsOpen
	}, waitFor, tick)

	require.NoError(t, viewer.Tick(ctx))
	view, _ := rv.poll(pollID)
	require.False(t, view.Snapshot.IsOpen)
	require.True(t, view.Snapshot.IsPinned)
	require.Len(t, view.Snapshot.Options, 3)

	require.NoError(t, viewer.ToggleOption(pollID, optionID(t, view, "Cafe")))
	require.Eventually(t, func() bool { return rv.hasError("Poll is closed") }, waitFor, tick)
}

func TestTick_PartialFailureKeepsLastSnapshot(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	pollID := e.startPoll(t, "alice", domain.PollDraft{Question: "Lieu?", Options: []string{"Cafe", "Parc"}})

	polls := &flakyPolls{PollStore: e.polls}
	c, r := e.started(t, "bob", opts{polls: polls})
	before, ok := r.poll(pollID)
	require.True(t, ok)

	polls.down.Store(true)
	cafe := optionID(t, before, "Cafe")
	require.NoError(t, e.polls.Vote(ctx, pollID, "alice", false, []string{cafe}))
	e.say(t, "alice", "still there?")

	err := c.Tick(ctx)
	require.ErrorIs(t, err, usecase.ErrStoreUnavailable)
	require.Equal(t, []string{"Lieu?", "still there?"}, r.contents())
	view, _ := r.poll(pollID)
	require.Zero(t, view.Snapshot.TotalVoters)
	require.Equal(t, feed.StateActive, c.State())

	polls.down.Store(false)
	require.NoError(t, c.Tick(ctx))
	view, _ = r.poll(pollID)
	require.Equal(t, 1, view.Snapshot.TotalVoters)
}

func TestCreatePoll_FailureLeavesNoPoll(t *testing.T) {
	e := newEnv()
	c, r := e.started(t, "alice", opts{polls: failingStart{PollStore: e.polls}})

	require.NoError(t, c.CreatePoll(domain.PollDraft{Question: "Lieu?", Pinned: true, Options: []string{"Cafe", "Parc"}}))
	require.Eventually(t, func() bool { return r.hasError("composer: Something went wrong") }, waitFor, tick)
	require.Eventually(t, func() bool { return r.idle(feed.ComposerScope) }, waitFor, tick)

	ctx := context.Background()
	pinned, err := e.polls.ListPinnedPollIDs(ctx, session)
	require.NoError(t, err)
	require.Empty(t, pinned)
	all, err := e.messages.ListAll(ctx, session)
	require.NoError(t, err)
	require.Empty(t, all)
	require.Empty(t, r.pollIDs())
}

func TestCreatePoll_PairsOneMessage(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	c, r := e.started(t, "alice", opts{})

	require.NoError(t, c.CreatePoll(domain.PollDraft{Question: "Lieu?", Options: []string{"Cafe", "Parc"}}))
	require.Eventually(t, func() bool { return len(r.pollIDs()) == 1 }, waitFor, tick)
	pollID := r.pollIDs()[0]
	require.Eventually(t, func() bool {
		_, ok := r.poll(pollID)
		return ok
	}, waitFor, tick)

	require.NoError(t, c.Tick(ctx))
	require.Equal(t, []string{pollID}, r.pollIDs())
	all, err := e.messages.ListAll(ctx, session)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, pollID, all[0].PollID)
	require.Equal(t, all[0].ID, r.messageIDs()[0])
}

func TestCreatePoll_RejectsInvalidDraft(t *testing.T) {
	e := newEnv()
	c, r := e.started(t, "alice", opts{})
	err := c.CreatePoll(domain.PollDraft{Question: "Lieu?", Options: []string{"Cafe"}})
	require.ErrorIs(t, err, usecase.ErrValidation)
	require.True(t, feed.Surfaced(err))
	require.Eventually(t, func() bool { return r.hasError("composer: ") }, waitFor, tick)
}

func TestActions_BusyWhenQueueIsFull(t *testing.T) {
	e := newEnv()
	pollID := e.startPoll(t, "alice", domain.PollDraft{Question: "Lieu?", Options: []string{"Cafe", "Parc"}})

	polls := &blockingPolls{PollStore: e.polls, release: make(chan struct{}), entered: make(chan struct{}, 4)}
	c, r := e.started(t, "bob", opts{
		polls: polls,
		cfg:   feed.Config{Interval: time.Hour, StoreTimeout: 5 * time.Second, Workers: 1, Queue: 1},
	})
	view, _ := r.poll(pollID)
	cafe := optionID(t, view, "Cafe")

	require.NoError(t, c.Vote(pollID, []string{cafe}))
	<-polls.entered
	require.NoError(t, c.Vote(pollID, []string{cafe}))
	require.NoError(t, c.Vote(pollID, []string{cafe}))
	require.Eventually(t, func() bool { return r.hasError("Too many actions in progress") }, waitFor, tick)

	close(polls.release)
	require.Eventually(t, func() bool {
		v, _ := r.poll(pollID)
		return v.Snapshot.TotalVoters == 1
	}, waitFor, tick)
}

func TestTick_FollowsAccessChanges(t *testing.T) {
	e := newEnv()
	c, r := e.started(t, "carol", opts{})
	enabled, _ := r.lastComposer()
	require.False(t, enabled)

	e.db.PutParticipation(domain.Participation{SessionID: session, UserID: "carol", Status: domain.ParticipationAccepted})
	require.NoError(t, c.Tick(context.Background()))
	enabled, _ = r.lastComposer()
	require.True(t, enabled)
}

func TestController_TicksOnInterval(t *testing.T) {
	e := newEnv()
	_, r := e.started(t, "bob", opts{cfg: feed.Config{Interval: time.Second, StoreTimeout: time.Second, Workers: 1, Queue: 1}})
	e.say(t, "alice", "later")
	require.Eventually(t, func() bool { return len(r.contents()) == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestTick_OverlappingTickIsSkipped(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.say(t, "alice", "one")
	history := &slowLog{MessageLog: e.messages, entered: make(chan struct{}), release: make(chan struct{})}
	c, r := e.started(t, "bob", opts{messages: history, cfg: slowCfg})

	e.say(t, "alice", "two")
	history.armed.Store(true)
	slow := make(chan error, 1)
	go func() { slow <- c.Tick(ctx) }()
	<-history.entered

	require.ErrorIs(t, c.Tick(ctx), feed.ErrTickSkipped)
	close(history.release)
	require.NoError(t, <-slow)
	require.Equal(t, []string{"one", "two"}, r.contents())

	require.NoError(t, c.Tick(ctx))
	require.Equal(t, []string{"one", "two"}, r.contents())
}

func TestTick_StaleSnapshotDoesNotReplaceVote(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	pollID := e.startPoll(t, "alice", domain.PollDraft{Question: "Lieu?", Options: []string{"Cafe", "Parc"}})
	polls := &slowSnapshots{PollStore: e.polls, entered: make(chan struct{}), release: make(chan struct{})}
	c, r := e.started(t, "bob", opts{polls: polls, cfg: slowCfg})
	view, ok := r.poll(pollID)
	require.True(t, ok)
	cafe := optionID(t, view, "Cafe")

	polls.armed.Store(true)
	slow := make(chan error, 1)
	go func() { slow <- c.Tick(ctx) }()
	<-polls.entered

	require.NoError(t, c.Vote(pollID, []string{cafe}))
	require.Eventually(t, func() bool {
		v, _ := r.poll(pollID)
		return v.Snapshot.MyOptionIDs.Has(cafe) && option(v, "Cafe").Votes == 1
	}, waitFor, tick)

	close(polls.release)
	require.NoError(t, <-slow)
	view, _ = r.poll(pollID)
	require.True(t, view.Snapshot.MyOptionIDs.Has(cafe))
	require.Equal(t, 1, option(view, "Cafe").Votes)
	require.Equal(t, 1, view.Snapshot.TotalVoters)
}
