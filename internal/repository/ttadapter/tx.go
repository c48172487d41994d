package ttadapter

import (
	"context"
	"fmt"

	"github.com/tarantool/go-tarantool/v2"
)

// inTransaction runs fn inside an interactive transaction on a fresh stream.
// Requires memtx MVCC to be enabled on the server.
func inTransaction(ctx context.Context, conn *tarantool.Connection, fn func(stream *tarantool.Stream) error) error {
	stream, err := conn.NewStream()
	if err != nil {
		return fmt.Errorf("could not open stream: %w", err)
	}
	if _, err = stream.Do(
		tarantool.NewBeginRequest().
			Context(ctx).
			TxnIsolation(tarantool.ReadCommittedLevel),
	).Get(); err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err = fn(stream); err != nil {
		if _, rbErr := stream.Do(
			tarantool.NewRollbackRequest().Context(context.WithoutCancel(ctx)),
		).Get(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if _, err = stream.Do(tarantool.NewCommitRequest().Context(ctx)).Get(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}
