package ttadapter

import (
	"context"
	"fmt"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	messageSpace = "messages"
	// messagePage - maximum tuples fetched by one select of ListAfter.
	messagePage = 500
)

type MessageRepository struct {
	conn *tarantool.Connection
}

func NewMessageRepository(conn *tarantool.Connection) *MessageRepository {
	return &MessageRepository{
		conn: conn,
	}
}

func (r *MessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	var res []MessageModel
	if err := r.conn.Do(
		tarantool.NewInsertRequest(messageSpace).
			Context(ctx).
			Tuple(NewMessageModel(msg)),
	).GetTyped(&res); err != nil {
		return usecase.Unavailable("insert message", err)
	}
	if len(res) == 0 {
		return usecase.Unavailable("insert message", fmt.Errorf("no tuple returned"))
	}
	msg.ID = res[0].ID
	return nil
}

// ListAfter walks the (session_id, id) index forward from the cursor page by page.
func (r *MessageRepository) ListAfter(ctx context.Context, sessionID string, cursor int64) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	for {
		var page []MessageModel
		if err := r.conn.Do(
			tarantool.NewSelectRequest(messageSpace).
				Context(ctx).
				Index("session").
				Iterator(tarantool.IterGt).
				Limit(messagePage).
				Key([]interface{}{sessionID, cursor}),
		).GetTyped(&page); err != nil {
			return nil, usecase.Unavailable("select messages", err)
		}

		for i := range page {
			if page[i].SessionID != sessionID {
				return msgs, nil
			}
			msgs = append(msgs, page[i].ToMessage())
			cursor = page[i].ID
		}
		if len(page) < messagePage {
			return msgs, nil
		}
	}
}
