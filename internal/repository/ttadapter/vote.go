package ttadapter

import (
	"context"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	voteSpace = "poll_votes"
)

type VoteRepository struct {
	conn *tarantool.Connection
}

func NewVoteRepository(conn *tarantool.Connection) *VoteRepository {
	return &VoteRepository{
		conn: conn,
	}
}

// Replace swaps the user's votes inside one transaction,
// readers see either the old set or the new one.
func (r *VoteRepository) Replace(ctx context.Context, pollID, userID string, optionIDs []string) error {
	err := inTransaction(ctx, r.conn, func(stream *tarantool.Stream) error {
		if err := deleteUserVotes(ctx, stream, pollID, userID); err != nil {
			return err
		}
		for _, optionID := range optionIDs {
			if _, err := stream.Do(
				tarantool.NewInsertRequest(voteSpace).
					Context(ctx).
					Tuple(&VoteModel{PollID: pollID, UserID: userID, OptionID: optionID}),
			).Get(); err != nil {
				return err
			}
		}
		return nil
	})
	return usecase.Unavailable("replace votes", err)
}

func (r *VoteRepository) DeleteByUser(ctx context.Context, pollID, userID string) error {
	err := inTransaction(ctx, r.conn, func(stream *tarantool.Stream) error {
		return deleteUserVotes(ctx, stream, pollID, userID)
	})
	return usecase.Unavailable("delete votes", err)
}

func (r *VoteRepository) ListByPoll(ctx context.Context, pollID string) ([]domain.PollVote, error) {
	var res []VoteModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(voteSpace).
			Context(ctx).
			Index("primary").
			Iterator(tarantool.IterEq).
			Key([]interface{}{pollID}),
	).GetTyped(&res); err != nil {
		return nil, usecase.Unavailable("select votes", err)
	}
	votes := make([]domain.PollVote, len(res))
	for i := range res {
		votes[i] = res[i].ToVote()
	}
	return votes, nil
}

func deleteUserVotes(ctx context.Context, stream *tarantool.Stream, pollID, userID string) error {
	var current []VoteModel
	if err := stream.Do(
		tarantool.NewSelectRequest(voteSpace).
			Context(ctx).
			Index("primary").
			Iterator(tarantool.IterEq).
			Key([]interface{}{pollID, userID}),
	).GetTyped(&current); err != nil {
		return err
	}
	for _, vote := range current {
		if _, err := stream.Do(deleteVoteRequest(ctx, vote)).Get(); err != nil {
			return err
		}
	}
	return nil
}

func deleteVoteRequest(ctx context.Context, vote VoteModel) *tarantool.DeleteRequest {
	return tarantool.NewDeleteRequest(voteSpace).
		Context(ctx).
		Index("primary").
		Key([]interface{}{vote.PollID, vote.UserID, vote.OptionID})
}
