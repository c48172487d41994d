package ttadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	pollSpace   = "polls"
	optionSpace = "poll_options"
)

type PollRepository struct {
	conn *tarantool.Connection
}

func NewPollRepository(conn *tarantool.Connection) *PollRepository {
	return &PollRepository{
		conn: conn,
	}
}

func (r *PollRepository) Save(ctx context.Context, poll *domain.Poll, options []domain.PollOption) error {
	err := inTransaction(ctx, r.conn, func(stream *tarantool.Stream) error {
		return insertPoll(ctx, stream, poll, options)
	})
	return usecase.Unavailable("save poll", err)
}

// SaveWithMessage inserts the poll, its options and the POLL message in one stream transaction.
func (r *PollRepository) SaveWithMessage(ctx context.Context, poll *domain.Poll, options []domain.PollOption, msg *domain.ChatMessage) error {
	var id int64
	err := inTransaction(ctx, r.conn, func(stream *tarantool.Stream) error {
		if err := insertPoll(ctx, stream, poll, options); err != nil {
			return err
		}
		var res []MessageModel
		if err := stream.Do(
			tarantool.NewInsertRequest(messageSpace).
				Context(ctx).
				Tuple(NewMessageModel(msg)),
		).GetTyped(&res); err != nil {
			return err
		}
		if len(res) == 0 {
			return fmt.Errorf("no tuple returned")
		}
		id = res[0].ID
		return nil
	})
	if err != nil {
		return usecase.Unavailable("save poll with message", err)
	}
	msg.ID = id
	return nil
}

func insertPoll(ctx context.Context, stream *tarantool.Stream, poll *domain.Poll, options []domain.PollOption) error {
	if _, err := stream.Do(
		tarantool.NewInsertRequest(pollSpace).
			Context(ctx).
			Tuple(NewPollModel(poll)),
	).Get(); err != nil {
		return err
	}
	for i := range options {
		if _, err := stream.Do(
			tarantool.NewInsertRequest(optionSpace).
				Context(ctx).
				Tuple(NewOptionModel(&options[i])),
		).Get(); err != nil {
			return err
		}
	}
	return nil
}

func (r *PollRepository) GetByID(ctx context.Context, id string) (*domain.Poll, error) {
	var res []PollModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(pollSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key(tarantool.StringKey{S: id}),
	).GetTyped(&res); err != nil {
		return nil, usecase.Unavailable("select poll", err)
	}
	if len(res) == 0 {
		return nil, usecase.ErrPollNotFound
	}
	return res[0].ToPoll(), nil
}

func (r *PollRepository) Close(ctx context.Context, id string) error {
	return r.update(ctx, id, tarantool.NewOperations().Assign(pollFieldOpen, false))
}

func (r *PollRepository) SetPinned(ctx context.Context, id string, pinned bool, at time.Time) error {
	var pinnedAt int64
	if pinned {
		pinnedAt = at.UnixNano()
	}
	return r.update(ctx, id, tarantool.NewOperations().
		Assign(pollFieldPinned, pinned).
		Assign(pollFieldPinnedAt, pinnedAt))
}

func (r *PollRepository) update(ctx context.Context, id string, ops *tarantool.Operations) error {
	var res []PollModel
	if err := r.conn.Do(
		tarantool.NewUpdateRequest(pollSpace).
			Context(ctx).
			Index("primary").
			Key(tarantool.StringKey{S: id}).
			Operations(ops),
	).GetTyped(&res); err != nil {
		return usecase.Unavailable("update poll", err)
	}
	if len(res) == 0 {
		return usecase.ErrPollNotFound
	}
	return nil
}

func (r *PollRepository) ListPinned(ctx context.Context, sessionID string) ([]domain.Poll, error) {
	var res []PollModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(pollSpace).
			Context(ctx).
			Index("session_pinned").
			Iterator(tarantool.IterEq).
			Key([]interface{}{sessionID, true}),
	).GetTyped(&res); err != nil {
		return nil, usecase.Unavailable("select pinned polls", err)
	}
	polls := make([]domain.Poll, len(res))
	for i := range res {
		polls[i] = *res[i].ToPoll()
	}
	domain.SortPinned(polls)
	return polls, nil
}

func (r *PollRepository) AddOption(ctx context.Context, option *domain.PollOption) error {
	_, err := r.conn.Do(
		tarantool.NewInsertRequest(optionSpace).
			Context(ctx).
			Tuple(NewOptionModel(option)),
	).Get()
	return usecase.Unavailable("insert option", err)
}

func (r *PollRepository) ListOptions(ctx context.Context, pollID string) ([]domain.PollOption, error) {
	var res []OptionModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(optionSpace).
			Context(ctx).
			Index("poll").
			Iterator(tarantool.IterEq).
			Key([]interface{}{pollID}),
	).GetTyped(&res); err != nil {
		return nil, usecase.Unavailable("select options", err)
	}
	options := make([]domain.PollOption, len(res))
	for i := range res {
		options[i] = res[i].ToOption()
	}
	return options, nil
}
