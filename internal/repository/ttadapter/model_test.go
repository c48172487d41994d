package ttadapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

func TestMessageModel_NewMessageEncodesNilID(t *testing.T) {
	msg := domain.NewTextMessage("s1", "u1", "hello", time.Unix(1700000000, 0))

	b, err := msgpack.Marshal(NewMessageModel(msg))
	require.NoError(t, err)

	var raw []interface{}
	require.NoError(t, msgpack.Unmarshal(b, &raw))
	require.Len(t, raw, messageModelFields)
	require.Nil(t, raw[0])
	require.Equal(t, "hello", raw[4])
	require.Equal(t, "TEXT", raw[5])
}

func TestMessageModel_DecodeStoredTuple(t *testing.T) {
	sentAt := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	msg := domain.NewPollMessage("s1", "u1", "p1", "Lieu?", sentAt)
	msg.ID = 42

	b, err := msgpack.Marshal(NewMessageModel(msg))
	require.NoError(t, err)

	var got MessageModel
	require.NoError(t, msgpack.Unmarshal(b, &got))
	out := got.ToMessage()
	require.Equal(t, int64(42), out.ID)
	require.Equal(t, domain.MessagePoll, out.Kind)
	require.Equal(t, "p1", out.PollID)
	require.True(t, sentAt.Equal(out.SentAt))
}

func TestPollModel_PinnedAtSurvivesTuple(t *testing.T) {
	pinnedAt := time.Unix(0, 1700000000123456789).UTC()
	poll := &domain.Poll{ID: "p1", SessionID: "s1", CreatedBy: "u1", Question: "Lieu?", Pinned: true, PinnedAt: pinnedAt, Open: true}

	b, err := msgpack.Marshal(NewPollModel(poll))
	require.NoError(t, err)

	var got PollModel
	require.NoError(t, msgpack.Unmarshal(b, &got))
	require.Equal(t, poll, got.ToPoll())
}

func TestPollModel_UnpinnedHasZeroPinTime(t *testing.T) {
	poll := &domain.Poll{ID: "p1", PinnedAt: time.Now(), Open: true}
	require.Zero(t, NewPollModel(poll).PinnedAt)
}

func TestReadMarkerModel_Tuple(t *testing.T) {
	b, err := msgpack.Marshal(&ReadMarkerModel{SessionID: "s1", UserID: "u1", MessageID: 7})
	require.NoError(t, err)

	var raw []interface{}
	require.NoError(t, msgpack.Unmarshal(b, &raw))
	require.Len(t, raw, markerModelFields)
	require.Equal(t, "u1", raw[1])

	var got ReadMarkerModel
	require.NoError(t, msgpack.Unmarshal(b, &got))
	require.Equal(t, ReadMarkerModel{SessionID: "s1", UserID: "u1", MessageID: 7}, got)
}

func TestDecodeStrings_WrongArity(t *testing.T) {
	b, err := msgpack.Marshal([]string{"p1", "u1"})
	require.NoError(t, err)

	var vote VoteModel
	require.Error(t, msgpack.Unmarshal(b, &vote))
}
