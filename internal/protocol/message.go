package protocol

import "encoding/json"

// Action identifies the message kind carried in the wire-level "action" field.
type Action string

const (
	ActionJoin         Action = "JOIN"
	ActionLeave        Action = "LEAVE"
	ActionSyncRequest  Action = "SYNC_REQ"
	ActionTimeRequest  Action = "TIME_REQ"
	ActionAssign       Action = "ASSIGN"
	ActionSyncResponse Action = "SYNC_RESPONSE"
)

// Message is the tagged union transmitted between producer and observers.
// Only the fields belonging to the action are meaningful; the encoder
// emits exactly the fields the action defines.
type Message struct {
	Action            Action  `json:"action"`
	Requester         string  `json:"requester,omitempty"`
	RequesterDelay    int     `json:"requester_delay,omitempty"`
	MainObserverDelay int     `json:"main_observer_delay,omitempty"`
	TimeMillis        int64   `json:"time_ms,omitempty"`
	Value             float64 `json:"value,omitempty"`
}

// Join announces a user on its own topic.
func Join() Message { return Message{Action: ActionJoin} }

// Leave withdraws a user from its room.
func Leave() Message { return Message{Action: ActionLeave} }

// SyncRequest asks the producer for a clock offset.
func SyncRequest() Message { return Message{Action: ActionSyncRequest} }

// TimeRequest relays a sync request to the main observer, carrying the
// declared delays of both ends of the exchange.
func TimeRequest(requester string, requesterDelayMs, mainObserverDelayMs int) Message {
	return Message{
		Action:            ActionTimeRequest,
		Requester:         requester,
		RequesterDelay:    requesterDelayMs,
		MainObserverDelay: mainObserverDelayMs,
	}
}

// Assign notifies an observer of the delay the producer holds for it.
func Assign(timeMs int64) Message {
	return Message{Action: ActionAssign, TimeMillis: timeMs}
}

// SyncResponse carries the computed offset in seconds back to the requester.
func SyncResponse(valueSeconds float64) Message {
	return Message{Action: ActionSyncResponse, Value: valueSeconds}
}

// MarshalJSON emits the action tag plus only the fields that action defines,
// so zero-valued delays still appear on the wire where the vocabulary
// requires them.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"action": m.Action}
	switch m.Action {
	case ActionTimeRequest:
		out["requester"] = m.Requester
		out["requester_delay"] = m.RequesterDelay
		out["main_observer_delay"] = m.MainObserverDelay
	case ActionAssign:
		out["time_ms"] = m.TimeMillis
	case ActionSyncResponse:
		out["value"] = m.Value
	}
	return json.Marshal(out)
}

// Encode serializes a message to its UTF-8 JSON wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an inbound payload. Malformed JSON and payloads whose
// action is missing or unrecognized yield no message; the caller logs and
// drops the delivery, nothing is surfaced as an error.
func Decode(payload []byte) (Message, bool) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, false
	}
	switch m.Action {
	case ActionJoin, ActionLeave, ActionSyncRequest, ActionTimeRequest, ActionAssign, ActionSyncResponse:
		return m, true
	default:
		return Message{}, false
	}
}
