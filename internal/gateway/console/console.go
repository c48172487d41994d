package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/feed"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Feed - intents the console issues on behalf of the viewer.
type Feed interface {
	SendText(content string) error
	CreatePoll(draft domain.PollDraft) error
	Select(pollID string, optionIDs []string) error
	ToggleOption(pollID, optionID string) error
	Vote(pollID string, optionIDs []string) error
	VoteSelection(pollID string) error
	ClearVote(pollID string) error
	AddOption(pollID, text string) error
	TogglePin(pollID string) error
	ClosePoll(pollID string) error
	ClosePollView(pollID string) error
}

// Console renders a feed to a writer and turns typed lines into intents.
type Console struct {
	out  io.Writer
	mode Mode
	feed Feed

	mu      sync.Mutex
	polls   map[string]feed.PollView
	printed map[string]string
	order   []string
	pinned  string
}

var _ feed.Renderer = (*Console)(nil)

func New(out io.Writer, mode Mode) *Console {
	if mode != ModeJSON {
		mode = ModeText
	}
	return &Console{
		out:     out,
		mode:    mode,
		polls:   make(map[string]feed.PollView),
		printed: make(map[string]string),
	}
}

// Attach binds the console to the feed it sends intents to.
func (c *Console) Attach(f Feed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feed = f
}

type event struct {
	Event   string       `json:"event"`
	Message *messageJSON `json:"message,omitempty"`
	Poll    *pollJSON    `json:"poll,omitempty"`
	Pinned  []pollJSON   `json:"pinned,omitempty"`
	Enabled *bool        `json:"enabled,omitempty"`
	Scope   string       `json:"scope,omitempty"`
	Busy    *bool        `json:"busy,omitempty"`
	Error   string       `json:"error,omitempty"`
	Text    string       `json:"text,omitempty"`
}

type messageJSON struct {
	ID       int64  `json:"id"`
	SenderID string `json:"sender_id"`
	SentAt   string `json:"sent_at"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	PollID   string `json:"poll_id,omitempty"`
}

type optionJSON struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Votes    int     `json:"votes"`
	Percent  float64 `json:"percent"`
	Selected bool    `json:"selected"`
}

type pollJSON struct {
	ID            string       `json:"id"`
	Ref           int          `json:"ref"`
	Question      string       `json:"question"`
	Options       []optionJSON `json:"options"`
	TotalVoters   int          `json:"total_voters"`
	Open          bool         `json:"open"`
	Pinned        bool         `json:"pinned"`
	AllowMulti    bool         `json:"allow_multi"`
	AllowAdd      bool         `json:"allow_add_options"`
	CreatedByName string       `json:"created_by_name"`
	Dirty         bool         `json:"dirty"`
}

func (c *Console) AppendMessage(msg domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Kind == domain.MessagePoll {
		c.refLocked(msg.PollID)
	}
	if c.mode == ModeJSON {
		c.emitLocked(event{Event: "message", Message: &messageJSON{
			ID:       msg.ID,
			SenderID: msg.SenderID,
			SentAt:   msg.SentAt.UTC().Format(time.RFC3339),
			Kind:     string(msg.Kind),
			Content:  msg.Content,
			PollID:   msg.PollID,
		}})
		return
	}
	ts := msg.SentAt.Local().Format("15:04")
	if msg.Kind == domain.MessagePoll {
		c.printfLocked("[%s] %s started poll #%d: %s\n", ts, msg.SenderID, c.refLocked(msg.PollID), msg.Content)
		return
	}
	c.printfLocked("[%s] %s: %s\n", ts, msg.SenderID, msg.Content)
}

func (c *Console) RenderPoll(view feed.PollView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := view.Snapshot.PollID
	c.polls[id] = view
	text := c.formatPollLocked(view)
	if c.printed[id] == text {
		return
	}
	c.printed[id] = text
	if c.mode == ModeJSON {
		p := c.pollJSONLocked(view)
		c.emitLocked(event{Event: "poll", Poll: &p})
		return
	}
	c.printfLocked("%s", text)
}

func (c *Console) RenderPinned(views []feed.PollView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs := make([]string, len(views))
	for i, view := range views {
		c.polls[view.Snapshot.PollID] = view
		refs[i] = fmt.Sprintf("#%d %s", c.refLocked(view.Snapshot.PollID), view.Snapshot.Question)
	}
	line := strings.Join(refs, ", ")
	if line == c.pinned {
		return
	}
	c.pinned = line
	if c.mode == ModeJSON {
		pinned := make([]pollJSON, len(views))
		for i, view := range views {
			pinned[i] = c.pollJSONLocked(view)
		}
		c.emitLocked(event{Event: "pinned", Pinned: pinned})
		return
	}
	if line == "" {
		c.printfLocked("Pinned: none\n")
		return
	}
	c.printfLocked("Pinned: %s\n", line)
}

func (c *Console) SetComposerEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeJSON {
		c.emitLocked(event{Event: "composer", Enabled: &enabled})
		return
	}
	if enabled {
		c.printfLocked("You can write in this chat\n")
		return
	}
	c.printfLocked("You are not a participant of this outing, the chat is read-only\n")
}

func (c *Console) SetBusy(scope feed.Scope, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeJSON {
		c.emitLocked(event{Event: "busy", Scope: string(scope), Busy: &busy})
	}
}

func (c *Console) ShowError(scope feed.Scope, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeJSON {
		c.emitLocked(event{Event: "error", Scope: string(scope), Error: message})
		return
	}
	c.printfLocked("! %s\n", message)
}

// refLocked returns the short number of a poll, assigning one on first sight.
func (c *Console) refLocked(pollID string) int {
	for i, id := range c.order {
		if id == pollID {
			return i + 1
		}
	}
	c.order = append(c.order, pollID)
	return len(c.order)
}

func (c *Console) formatPollLocked(view feed.PollView) string {
	s := view.Snapshot
	var b strings.Builder
	state := "open"
	if !s.IsOpen {
		state = "closed"
	}
	fmt.Fprintf(&b, "Poll #%d by %s (%s", c.refLocked(s.PollID), s.CreatedByName, state)
	if s.IsPinned {
		b.WriteString(", pinned")
	}
	if s.AllowMulti {
		b.WriteString(", multiple choice")
	}
	fmt.Fprintf(&b, "): %s\n", s.Question)
	for i, option := range s.Options {
		mark := "[ ]"
		if view.Selection.Has(option.ID) {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "  %d. %s %s - %d (%.0f%%)\n", i+1, mark, option.Text, option.Votes, option.Percent*100)
	}
	fmt.Fprintf(&b, "  Voters: %d", s.TotalVoters)
	if view.Dirty {
		b.WriteString(" - not submitted")
	}
	b.WriteString("\n")
	return b.String()
}

func (c *Console) pollJSONLocked(view feed.PollView) pollJSON {
	s := view.Snapshot
	options := make([]optionJSON, len(s.Options))
	for i, option := range s.Options {
		options[i] = optionJSON{
			ID:       option.ID,
			Text:     option.Text,
			Votes:    option.Votes,
			Percent:  option.Percent,
			Selected: view.Selection.Has(option.ID),
		}
	}
	return pollJSON{
		ID:            s.PollID,
		Ref:           c.refLocked(s.PollID),
		Question:      s.Question,
		Options:       options,
		TotalVoters:   s.TotalVoters,
		Open:          s.IsOpen,
		Pinned:        s.IsPinned,
		AllowMulti:    s.AllowMulti,
		AllowAdd:      s.AllowAddOptions,
		CreatedByName: s.CreatedByName,
		Dirty:         view.Dirty,
	}
}

func (c *Console) emitLocked(e event) {
	b, err := json.Marshal(e)
	if err != nil {
		log.WithError(err).Error("could not encode console event")
		return
	}
	c.printfLocked("%s\n", b)
}

func (c *Console) printfLocked(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		log.WithError(err).Debug("could not write to console")
	}
}

// knownPolls lists the polls rendered so far, used by /help.
func (c *Console) knownPolls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs := make([]string, 0, len(c.order))
	for i, id := range c.order {
		if view, ok := c.polls[id]; ok {
			refs = append(refs, fmt.Sprintf("#%d %s", i+1, view.Snapshot.Question))
		}
	}
	return refs
}
