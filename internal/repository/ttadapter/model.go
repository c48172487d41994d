package ttadapter

import (
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool/v2/datetime"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

type MessageModel struct {
	ID        int64
	SessionID string
	SenderID  string
	SentAt    time.Time
	Content   string
	Kind      string
	PollID    string
}

type PollModel struct {
	ID              string
	SessionID       string
	CreatedBy       string
	Question        string
	AllowMulti      bool
	AllowAddOptions bool
	Pinned          bool
	// PinnedAt - unix nanoseconds, 0 when not pinned.
	PinnedAt int64
	Open     bool
}

type OptionModel struct {
	ID       string
	PollID   string
	Text     string
	AddedBy  string
	Position int
}

type VoteModel struct {
	PollID   string
	UserID   string
	OptionID string
}

type SessionModel struct {
	ID          string
	OwnerUserID string
	Title       string
}

type ParticipantModel struct {
	SessionID string
	UserID    string
	Status    string
}

type ReadMarkerModel struct {
	SessionID string
	UserID    string
	MessageID int64
}

type UserModel struct {
	ID          string
	Role        string
	DisplayName string
}

const (
	messageModelFields     = 7
	pollModelFields        = 9
	optionModelFields      = 5
	voteModelFields        = 3
	sessionModelFields     = 3
	participantModelFields = 3
	userModelFields        = 3
	markerModelFields      = 3
)

// Field numbers of the polls space used by update requests.
const (
	pollFieldPinned   = 6
	pollFieldPinnedAt = 7
	pollFieldOpen     = 8
)

func NewMessageModel(msg *domain.ChatMessage) *MessageModel {
	return &MessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		SentAt:    msg.SentAt,
		Content:   msg.Content,
		Kind:      string(msg.Kind),
		PollID:    msg.PollID,
	}
}

func (m *MessageModel) ToMessage() domain.ChatMessage {
	return domain.ChatMessage{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		SentAt:    m.SentAt,
		Content:   m.Content,
		Kind:      domain.MessageKind(m.Kind),
		PollID:    m.PollID,
	}
}

func (m *MessageModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(messageModelFields); err != nil {
		return err
	}
	// nil ID lets the space sequence assign the next one.
	if m.ID == 0 {
		if err := e.EncodeNil(); err != nil {
			return err
		}
	} else if err := e.EncodeInt(m.ID); err != nil {
		return err
	}
	if err := e.EncodeString(m.SessionID); err != nil {
		return err
	}
	if err := e.EncodeString(m.SenderID); err != nil {
		return err
	}
	sentAt, err := datetime.MakeDatetime(m.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("could not convert sent_at: %w", err)
	}
	if err = e.Encode(&sentAt); err != nil {
		return err
	}
	if err = e.EncodeString(m.Content); err != nil {
		return err
	}
	if err = e.EncodeString(m.Kind); err != nil {
		return err
	}
	return e.EncodeString(m.PollID)
}

func (m *MessageModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != messageModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if m.ID, err = d.DecodeInt64(); err != nil {
		return err
	}
	if m.SessionID, err = d.DecodeString(); err != nil {
		return err
	}
	if m.SenderID, err = d.DecodeString(); err != nil {
		return err
	}
	var sentAt datetime.Datetime
	if err = d.Decode(&sentAt); err != nil {
		return err
	}
	m.SentAt = sentAt.ToTime()
	if m.Content, err = d.DecodeString(); err != nil {
		return err
	}
	if m.Kind, err = d.DecodeString(); err != nil {
		return err
	}
	if m.PollID, err = d.DecodeString(); err != nil {
		return err
	}
	return nil
}

func NewPollModel(poll *domain.Poll) *PollModel {
	var pinnedAt int64
	if poll.Pinned && !poll.PinnedAt.IsZero() {
		pinnedAt = poll.PinnedAt.UnixNano()
	}
	return &PollModel{
		ID:              poll.ID,
		SessionID:       poll.SessionID,
		CreatedBy:       poll.CreatedBy,
		Question:        poll.Question,
		AllowMulti:      poll.AllowMulti,
		AllowAddOptions: poll.AllowAddOptions,
		Pinned:          poll.Pinned,
		PinnedAt:        pinnedAt,
		Open:            poll.Open,
	}
}

func (p *PollModel) ToPoll() *domain.Poll {
	poll := &domain.Poll{
		ID:              p.ID,
		SessionID:       p.SessionID,
		CreatedBy:       p.CreatedBy,
		Question:        p.Question,
		AllowMulti:      p.AllowMulti,
		AllowAddOptions: p.AllowAddOptions,
		Pinned:          p.Pinned,
		Open:            p.Open,
	}
	if p.PinnedAt != 0 {
		poll.PinnedAt = time.Unix(0, p.PinnedAt).UTC()
	}
	return poll
}

func (p *PollModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(pollModelFields); err != nil {
		return err
	}
	for _, s := range []string{p.ID, p.SessionID, p.CreatedBy, p.Question} {
		if err := e.EncodeString(s); err != nil {
			return err
		}
	}
	for _, b := range []bool{p.AllowMulti, p.AllowAddOptions, p.Pinned} {
		if err := e.EncodeBool(b); err != nil {
			return err
		}
	}
	if err := e.EncodeInt(p.PinnedAt); err != nil {
		return err
	}
	return e.EncodeBool(p.Open)
}

func (p *PollModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != pollModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	for _, s := range []*string{&p.ID, &p.SessionID, &p.CreatedBy, &p.Question} {
		if *s, err = d.DecodeString(); err != nil {
			return err
		}
	}
	for _, b := range []*bool{&p.AllowMulti, &p.AllowAddOptions, &p.Pinned} {
		if *b, err = d.DecodeBool(); err != nil {
			return err
		}
	}
	if p.PinnedAt, err = d.DecodeInt64(); err != nil {
		return err
	}
	if p.Open, err = d.DecodeBool(); err != nil {
		return err
	}
	return nil
}

func NewOptionModel(option *domain.PollOption) *OptionModel {
	return &OptionModel{
		ID:       option.ID,
		PollID:   option.PollID,
		Text:     option.Text,
		AddedBy:  option.AddedBy,
		Position: option.Position,
	}
}

func (o *OptionModel) ToOption() domain.PollOption {
	return domain.PollOption{
		ID:       o.ID,
		PollID:   o.PollID,
		Text:     o.Text,
		AddedBy:  o.AddedBy,
		Position: o.Position,
	}
}

func (o *OptionModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(optionModelFields); err != nil {
		return err
	}
	for _, s := range []string{o.ID, o.PollID, o.Text, o.AddedBy} {
		if err := e.EncodeString(s); err != nil {
			return err
		}
	}
	return e.EncodeInt(int64(o.Position))
}

func (o *OptionModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != optionModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	for _, s := range []*string{&o.ID, &o.PollID, &o.Text, &o.AddedBy} {
		if *s, err = d.DecodeString(); err != nil {
			return err
		}
	}
	if o.Position, err = d.DecodeInt(); err != nil {
		return err
	}
	return nil
}

func (v *VoteModel) ToVote() domain.PollVote {
	return domain.PollVote{
		PollID:   v.PollID,
		UserID:   v.UserID,
		OptionID: v.OptionID,
	}
}

func (v *VoteModel) EncodeMsgpack(e *msgpack.Encoder) error {
	return encodeStrings(e, v.PollID, v.UserID, v.OptionID)
}

func (v *VoteModel) DecodeMsgpack(d *msgpack.Decoder) error {
	return decodeStrings(d, voteModelFields, &v.PollID, &v.UserID, &v.OptionID)
}

func (s *SessionModel) ToSession() *domain.Session {
	return &domain.Session{
		ID:          s.ID,
		OwnerUserID: s.OwnerUserID,
		Title:       s.Title,
	}
}

func (s *SessionModel) EncodeMsgpack(e *msgpack.Encoder) error {
	return encodeStrings(e, s.ID, s.OwnerUserID, s.Title)
}

func (s *SessionModel) DecodeMsgpack(d *msgpack.Decoder) error {
	return decodeStrings(d, sessionModelFields, &s.ID, &s.OwnerUserID, &s.Title)
}

func (p *ParticipantModel) EncodeMsgpack(e *msgpack.Encoder) error {
	return encodeStrings(e, p.SessionID, p.UserID, p.Status)
}

func (p *ParticipantModel) DecodeMsgpack(d *msgpack.Decoder) error {
	return decodeStrings(d, participantModelFields, &p.SessionID, &p.UserID, &p.Status)
}

func (u *UserModel) ToUser() *domain.User {
	return &domain.User{
		ID:          u.ID,
		Role:        domain.Role(u.Role),
		DisplayName: u.DisplayName,
	}
}

func (u *UserModel) EncodeMsgpack(e *msgpack.Encoder) error {
	return encodeStrings(e, u.ID, u.Role, u.DisplayName)
}

func (u *UserModel) DecodeMsgpack(d *msgpack.Decoder) error {
	return decodeStrings(d, userModelFields, &u.ID, &u.Role, &u.DisplayName)
}

func encodeStrings(e *msgpack.Encoder, fields ...string) error {
	if err := e.EncodeArrayLen(len(fields)); err != nil {
		return err
	}
	for _, f := range fields {
		if err := e.EncodeString(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeStrings(d *msgpack.Decoder, want int, fields ...*string) error {
	l, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}
	if l != want {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	for _, f := range fields {
		if *f, err = d.DecodeString(); err != nil {
			return err
		}
	}
	return nil
}

func (m *ReadMarkerModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(markerModelFields); err != nil {
		return err
	}
	if err := e.EncodeString(m.SessionID); err != nil {
		return err
	}
	if err := e.EncodeString(m.UserID); err != nil {
		return err
	}
	return e.EncodeInt(m.MessageID)
}

func (m *ReadMarkerModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != markerModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if m.SessionID, err = d.DecodeString(); err != nil {
		return err
	}
	if m.UserID, err = d.DecodeString(); err != nil {
		return err
	}
	if m.MessageID, err = d.DecodeInt64(); err != nil {
		return err
	}
	return nil
}
