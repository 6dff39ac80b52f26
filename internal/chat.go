package internal

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind discriminates chat payloads.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Socket event names.
const (
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventError          = "error"
)

// Message is the unit of chat. CreatedAt is milliseconds since epoch and is
// only ever set by the relay.
type Message struct {
	ID        string `json:"id,omitempty"`
	Kind      Kind   `json:"kind"`
	Body      string `json:"body,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Sender    string `json:"sender"`
	CreatedAt int64  `json:"createdAt"`
}

// Envelope is the frame exchanged over the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// inboundMessage is what a client may submit; anything else in the payload,
// a createdAt included, is dropped.
type inboundMessage struct {
	Kind     Kind   `json:"kind" validate:"required,oneof=text image video"`
	Body     string `json:"body" validate:"max=4000"`
	MediaURL string `json:"mediaUrl" validate:"omitempty,url,max=2048"`
	Sender   string `json:"sender" validate:"required,max=64"`
}

var validate = validator.New()

// decodeMessage parses and validates a send_message payload. The returned
// message has no id and no timestamp yet.
func decodeMessage(raw []byte) (Message, error) {
	var in inboundMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return Message{}, &ValidationError{Reason: ReasonMalformed, Detail: "payload is not a message object"}
	}
	in.Sender = strings.TrimSpace(in.Sender)
	if err := validate.Struct(in); err != nil {
		return Message{}, &ValidationError{Reason: ReasonMalformed, Detail: describeValidation(err)}
	}
	switch in.Kind {
	case KindText:
		if strings.TrimSpace(in.Body) == "" {
			return Message{}, &ValidationError{Reason: ReasonMalformed, Detail: "text message needs a body"}
		}
	case KindImage, KindVideo:
		if in.MediaURL == "" {
			return Message{}, &ValidationError{Reason: ReasonMalformed, Detail: string(in.Kind) + " message needs a mediaUrl"}
		}
	}
	return Message{
		Kind:     in.Kind,
		Body:     in.Body,
		MediaURL: in.MediaURL,
		Sender:   in.Sender,
	}, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	return strings.ToLower(fe.Field()) + " failed " + fe.Tag()
}

func encodeEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}

// Stamper hands out non-decreasing millisecond timestamps even if the wall
// clock steps backwards.
type Stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

func (s *Stamper) Stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts < s.last {
		ts = s.last
	}
	s.last = ts
	return ts
}
