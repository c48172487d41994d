package feed

import "github.com/Xausdorf/outing-chat/internal/domain"

// Scope identifies the input an action disables and reports errors to.
type Scope string

// ComposerScope - message composer and poll creation form.
const ComposerScope Scope = "composer"

// PollScope returns the scope of a single poll view.
func PollScope(pollID string) Scope {
	return Scope("poll:" + pollID)
}

// PollView - snapshot merged with the viewer's local edits.
type PollView struct {
	Snapshot  domain.PollSnapshot
	Selection domain.OptionSet
	Dirty     bool
}

// Renderer paints the feed. Every method is called from the controller's
// loop goroutine only, so implementations need no locking of their own
// and must not block for long.
type Renderer interface {
	AppendMessage(msg domain.ChatMessage)
	RenderPoll(view PollView)
	RenderPinned(views []PollView)
	SetComposerEnabled(enabled bool)
	SetBusy(scope Scope, busy bool)
	ShowError(scope Scope, message string)
}
