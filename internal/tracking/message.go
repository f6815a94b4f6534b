// Package tracking defines the tracking stream's wire envelope.
//
// Inbound frames are a tagged union on the "type" field. Decode turns a frame
// into one of the Message variants; types it does not recognize come back as
// Unknown so callers can still forward them.
package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeInitialData    = "initial_data"
	TypePositionUpdate = "position_update"
	TypeAlert          = "alert"
	TypeStateChange    = "state_change"
	TypePong           = "pong"
)

// Outbound control types.
const (
	TypePing              = "ping"
	TypeSubscribeAnimal   = "subscribe_animal"
	TypeUnsubscribeAnimal = "unsubscribe_animal"
)

// ErrMissingType is returned for frames that parse but carry no type.
var ErrMissingType = errors.New("frame has no type")

// Message is an inbound frame.
type Message interface {
	Type() string
}

// InitialData is a full snapshot that replaces the local view.
type InitialData struct {
	Animals []Animal
}

// PositionUpdate merges into existing records by animal id.
type PositionUpdate struct {
	Animals []Animal
}

// AlertMessage wraps an alert frame.
type AlertMessage struct {
	Alert Alert
}

// StateChange reports backend status.
type StateChange struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Pong acknowledges a ping.
type Pong struct{}

// Unknown carries a frame with an unrecognized type.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (InitialData) Type() string    { return TypeInitialData }
func (PositionUpdate) Type() string { return TypePositionUpdate }
func (AlertMessage) Type() string   { return TypeAlert }
func (StateChange) Type() string    { return TypeStateChange }
func (Pong) Type() string           { return TypePong }
func (u Unknown) Type() string      { return u.Kind }

type envelope struct {
	Type    string          `json:"type"`
	Animals []Animal        `json:"animals"`
	Alert   json.RawMessage `json:"alert"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

// Decode parses one inbound frame.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	switch env.Type {
	case TypeInitialData:
		return InitialData{Animals: withIDs(env.Animals)}, nil
	case TypePositionUpdate:
		return PositionUpdate{Animals: withIDs(env.Animals)}, nil
	case TypeAlert:
		alert, err := decodeAlert(frame, env.Alert)
		if err != nil {
			return nil, err
		}
		return AlertMessage{Alert: alert}, nil
	case TypeStateChange:
		return StateChange{Status: env.Status, Message: env.Message}, nil
	case TypePong:
		return Pong{}, nil
	default:
		raw := make(json.RawMessage, len(frame))
		copy(raw, frame)
		return Unknown{Kind: env.Type, Raw: raw}, nil
	}
}

func decodeAlert(frame []byte, nested json.RawMessage) (Alert, error) {
	var fields map[string]any
	if len(nested) > 0 && nested[0] == '{' {
		if err := json.Unmarshal(nested, &fields); err != nil {
			return Alert{}, fmt.Errorf("decode alert: %w", err)
		}
		return alertFromFields(fields), nil
	}
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Alert{}, fmt.Errorf("decode alert: %w", err)
	}
	delete(fields, "type")
	delete(fields, "alert")
	return alertFromFields(fields), nil
}

// withIDs drops records without an id; they cannot be merged or replaced.
func withIDs(animals []Animal) []Animal {
	out := animals[:0]
	for _, a := range animals {
		if a.ID() != "" {
			out = append(out, a)
		}
	}
	return out
}

// Control is an outbound control message.
type Control struct {
	Type     string `json:"type"`
	AnimalID string `json:"animal_id,omitempty"`
}

// Ping builds a heartbeat.
func Ping() Control { return Control{Type: TypePing} }

// SubscribeAnimal asks the backend to stream one animal.
func SubscribeAnimal(id string) Control {
	return Control{Type: TypeSubscribeAnimal, AnimalID: id}
}

// UnsubscribeAnimal stops streaming one animal.
func UnsubscribeAnimal(id string) Control {
	return Control{Type: TypeUnsubscribeAnimal, AnimalID: id}
}
