package ttadapter

import (
	"context"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const markerSpace = "read_markers"

// MarkerRepository keeps per-user read markers in the read_markers space.
type MarkerRepository struct {
	conn *tarantool.Connection
}

func NewMarkerRepository(conn *tarantool.Connection) *MarkerRepository {
	return &MarkerRepository{
		conn: conn,
	}
}

// MarkReadUpTo only moves the marker forward.
func (r *MarkerRepository) MarkReadUpTo(ctx context.Context, sessionID, userID string, messageID int64) error {
	err := inTransaction(ctx, r.conn, func(stream *tarantool.Stream) error {
		var res []ReadMarkerModel
		if err := stream.Do(
			tarantool.NewSelectRequest(markerSpace).
				Context(ctx).
				Index("primary").
				Limit(1).
				Key([]interface{}{sessionID, userID}),
		).GetTyped(&res); err != nil {
			return err
		}
		if len(res) == 1 && res[0].MessageID >= messageID {
			return nil
		}
		_, err := stream.Do(
			tarantool.NewReplaceRequest(markerSpace).
				Context(ctx).
				Tuple(&ReadMarkerModel{SessionID: sessionID, UserID: userID, MessageID: messageID}),
		).Get()
		return err
	})
	return usecase.Unavailable("mark read", err)
}
