package console

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/feed"
)

const (
	pollStartMinArgsCount = 3
	flagMulti             = "--multi"
	flagOpen              = "--open"
	flagPin               = "--pin"
)

var (
	ErrQuit        = errors.New("quit requested")
	ErrNotAttached = errors.New("console is not attached to a feed")
)

const helpText = `Available commands:
	* any text not starting with / - sends a message to the chat.

	* /poll_start [question] "[option1]" "[option2]" ... [--multi] [--open] [--pin] - creates a poll.
	--multi allows several options, --open lets participants add options, --pin pins the poll.
	IMPORTANT: options with spaces must be quoted.

	* /poll_toggle [poll] [option] - toggles an option in your pending selection.

	* /poll_select [poll] [option] ... - replaces your pending selection.

	* /poll_vote [poll] [option] ... - submits a vote. Without options submits the pending selection.

	* /poll_clear [poll] - withdraws your vote.

	* /poll_add [poll] "[text]" - adds an option.

	* /poll_pin [poll] - pins or unpins a poll.

	* /poll_close [poll] - closes a poll.

	* /poll_hide [poll] - discards your pending selection.

	* /quit - leaves the chat.

	[poll] is the poll number shown as #N, [option] is the option number in the poll.`

// Listen reads commands line by line until EOF, /quit or ctx is done.
func (c *Console) Listen(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("could not read console input: %w", err)
					}
				default:
				}
				return nil
			}
			if err := c.HandleLine(line); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// HandleLine runs one typed line. Only ErrQuit and ErrNotAttached are returned,
// every other problem is reported to the viewer.
func (c *Console) HandleLine(line string) error {
	c.mu.Lock()
	f := c.feed
	c.mu.Unlock()
	if f == nil {
		return ErrNotAttached
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.report(f.SendText(line))
		return nil
	}

	// CSV reading for splitting a string at spaces, except spaces inside quotation marks.
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = ' '
	r.LazyQuotes = true
	tokens, err := r.Read()
	if err != nil {
		log.WithError(err).WithField("line", line).Debug("could not split command")
		c.respond("Could not read the command. Check the quotes")
		return nil
	}
	tokens = dropEmpty(tokens)
	if len(tokens) == 0 {
		return nil
	}

	args := tokens[1:]
	switch tokens[0] {
	case "/poll_start":
		c.handleStart(f, args)
	case "/poll_toggle":
		c.handleToggle(f, args)
	case "/poll_select":
		c.withPoll(args, 1, "There must be a poll and at least 1 option", func(pollID string, rest []string) error {
			ids, err := c.resolveOptions(pollID, rest)
			if err != nil {
				return err
			}
			return f.Select(pollID, ids)
		})
	case "/poll_vote":
		c.withPoll(args, 0, "There must be a poll", func(pollID string, rest []string) error {
			if len(rest) == 0 {
				return f.VoteSelection(pollID)
			}
			ids, err := c.resolveOptions(pollID, rest)
			if err != nil {
				return err
			}
			return f.Vote(pollID, ids)
		})
	case "/poll_clear":
		c.withPoll(args, 0, "There must be 1 argument: poll", func(pollID string, _ []string) error {
			return f.ClearVote(pollID)
		})
	case "/poll_add":
		c.withPoll(args, 1, "There must be 2 arguments: poll and option text", func(pollID string, rest []string) error {
			return f.AddOption(pollID, strings.Join(rest, " "))
		})
	case "/poll_pin":
		c.withPoll(args, 0, "There must be 1 argument: poll", func(pollID string, _ []string) error {
			return f.TogglePin(pollID)
		})
	case "/poll_close":
		c.withPoll(args, 0, "There must be 1 argument: poll", func(pollID string, _ []string) error {
			return f.ClosePoll(pollID)
		})
	case "/poll_hide":
		c.withPoll(args, 0, "There must be 1 argument: poll", func(pollID string, _ []string) error {
			return f.ClosePollView(pollID)
		})
	case "/help":
		c.handleHelp()
	case "/quit":
		return ErrQuit
	default:
		c.respond(fmt.Sprintf("Unknown command %s, type /help", tokens[0]))
	}
	return nil
}

func (c *Console) handleStart(f Feed, args []string) {
	// /poll_start [question] "[option1]" "[option2]" ... [--multi] [--open] [--pin]
	var draft domain.PollDraft
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		switch arg {
		case flagMulti:
			draft.AllowMulti = true
		case flagOpen:
			draft.AllowAddOptions = true
		case flagPin:
			draft.Pinned = true
		default:
			rest = append(rest, arg)
		}
	}
	if len(rest) < pollStartMinArgsCount {
		c.respond("Too few arguments. May be you didn't write the options?")
		return
	}
	draft.Question = rest[0]
	draft.Options = rest[1:]
	c.report(f.CreatePoll(draft))
}

func (c *Console) handleToggle(f Feed, args []string) {
	// /poll_toggle [poll] [option]
	if len(args) != 2 {
		c.respond("There must be 2 arguments: poll and option's number")
		return
	}
	pollID, err := c.resolvePoll(args[0])
	if err != nil {
		c.report(err)
		return
	}
	ids, err := c.resolveOptions(pollID, args[1:])
	if err != nil {
		c.report(err)
		return
	}
	c.report(f.ToggleOption(pollID, ids[0]))
}

func (c *Console) handleHelp() {
	c.respond(helpText)
	if polls := c.knownPolls(); len(polls) > 0 {
		c.respond("Polls in this chat: " + strings.Join(polls, ", "))
	}
}

// withPoll resolves the first argument to a poll id and runs fn with the rest.
func (c *Console) withPoll(args []string, minRest int, usage string, fn func(pollID string, rest []string) error) {
	if len(args) < 1+minRest {
		c.respond(usage)
		return
	}
	pollID, err := c.resolvePoll(args[0])
	if err != nil {
		c.report(err)
		return
	}
	c.report(fn(pollID, args[1:]))
}

func (c *Console) resolvePoll(ref string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err == nil {
		if n < 1 || n > len(c.order) {
			return "", feed.ErrUnknownPoll
		}
		return c.order[n-1], nil
	}
	for _, id := range c.order {
		if id == ref {
			return id, nil
		}
	}
	return "", feed.ErrUnknownPoll
}

func (c *Console) resolveOptions(pollID string, refs []string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.polls[pollID]
	if !ok {
		return nil, feed.ErrUnknownPoll
	}
	options := view.Snapshot.Options
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		n, err := strconv.Atoi(ref)
		if err == nil {
			if n < 1 || n > len(options) {
				return nil, errBadOption
			}
			ids = append(ids, options[n-1].ID)
			continue
		}
		found := false
		for _, option := range options {
			if option.ID == ref {
				ids = append(ids, option.ID)
				found = true
				break
			}
		}
		if !found {
			return nil, errBadOption
		}
	}
	return ids, nil
}

var errBadOption = errors.New("there are not so many options")

func (c *Console) report(err error) {
	if err == nil || feed.Surfaced(err) {
		return
	}
	if errors.Is(err, errBadOption) {
		c.respond("There are not so many options. Try again")
		return
	}
	c.respond(feed.Describe(err))
}

func (c *Console) respond(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeJSON {
		c.emitLocked(event{Event: "reply", Text: msg})
		return
	}
	c.printfLocked("%s\n", msg)
}

func dropEmpty(tokens []string) []string {
	out := tokens[:0]
	for _, token := range tokens {
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}
