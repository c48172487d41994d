package domain

import (
	"sort"
	"time"
)

// Poll - structure for storing information about poll embedded into a chat feed.
type Poll struct {
	ID              string
	SessionID       string
	CreatedBy       string
	Question        string
	AllowMulti      bool
	AllowAddOptions bool
	Pinned          bool
	// PinnedAt - moment of the last pin, zero when poll is not pinned.
	PinnedAt time.Time
	Open     bool
}

// PollOption - poll's option. Options are only appended, never edited.
type PollOption struct {
	ID      string
	PollID  string
	Text    string
	AddedBy string
	// Position - order of the option inside the poll.
	Position int
}

// PollVote - structure for connecting the user and one of his chosen options.
type PollVote struct {
	PollID   string
	UserID   string
	OptionID string
}

// PollDraft - input of poll creation.
type PollDraft struct {
	Question        string
	AllowMulti      bool
	AllowAddOptions bool
	Pinned          bool
	Options         []string
}

func NewPoll(sessionID, creatorID string, draft PollDraft) *Poll {
	return &Poll{
		SessionID:       sessionID,
		CreatedBy:       creatorID,
		Question:        draft.Question,
		AllowMulti:      draft.AllowMulti,
		AllowAddOptions: draft.AllowAddOptions,
		Pinned:          draft.Pinned,
		Open:            true,
	}
}

// OptionResult - option of a snapshot with its vote count.
type OptionResult struct {
	ID    string
	Text  string
	Votes int
	// Percent - share of voters in [0, 1].
	Percent float64
}

// PollSnapshot - viewer-specific computed read of a poll, it is never stored.
type PollSnapshot struct {
	PollID          string
	Question        string
	Options         []OptionResult
	MyOptionIDs     OptionSet
	TotalVoters     int
	IsOpen          bool
	IsPinned        bool
	AllowMulti      bool
	AllowAddOptions bool
	CreatedBy       string
	CreatedByName   string
}

// OptionSet - set of option IDs.
type OptionSet map[string]struct{}

func NewOptionSet(ids ...string) OptionSet {
	s := make(OptionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s OptionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s OptionSet) Clone() OptionSet {
	c := make(OptionSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Sorted returns IDs in ascending order.
func (s OptionSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s OptionSet) Equal(o OptionSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// PollViewState - in-memory state of an open poll view.
// Dirty is set while the viewer holds a local unsubmitted selection.
type PollViewState struct {
	Dirty            bool
	PendingSelection OptionSet
}

// SortPinned orders polls by pin time, ties broken by poll ID.
func SortPinned(polls []Poll) {
	sort.Slice(polls, func(i, j int) bool {
		if !polls[i].PinnedAt.Equal(polls[j].PinnedAt) {
			return polls[i].PinnedAt.Before(polls[j].PinnedAt)
		}
		return polls[i].ID < polls[j].ID
	})
}
