package ttadapter

import (
	"context"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	sessionSpace     = "sessions"
	participantSpace = "participants"
	userSpace        = "users"
)

type SessionRepository struct {
	conn *tarantool.Connection
}

func NewSessionRepository(conn *tarantool.Connection) *SessionRepository {
	return &SessionRepository{
		conn: conn,
	}
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var res []SessionModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(sessionSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key(tarantool.StringKey{S: id}),
	).GetTyped(&res); err != nil {
		return nil, usecase.Unavailable("select session", err)
	}
	if len(res) == 0 {
		return nil, usecase.ErrSessionNotFound
	}
	return res[0].ToSession(), nil
}

func (r *SessionRepository) IsAccepted(ctx context.Context, sessionID, userID string) (bool, error) {
	var res []ParticipantModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(participantSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key([]interface{}{sessionID, userID}),
	).GetTyped(&res); err != nil {
		return false, usecase.Unavailable("select participant", err)
	}
	return len(res) == 1 && res[0].Status == string(domain.ParticipationAccepted), nil
}

type UserRepository struct {
	conn *tarantool.Connection
}

func NewUserRepository(conn *tarantool.Connection) *UserRepository {
	return &UserRepository{
		conn: conn,
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var res []UserModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(userSpace).
			Context(ctx).
			Index("primary").
			Limit(1).
			Key(tarantool.StringKey{S: id}),
	).GetTyped(&res); err != nil {
		return nil, usecase.Unavailable("select user", err)
	}
	if len(res) == 0 {
		return nil, usecase.ErrUserNotFound
	}
	return res[0].ToUser(), nil
}
