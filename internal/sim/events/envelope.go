package events

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON form of an event used by the event log and the
// observer stream.
type Envelope struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func Wrap(seq uint64, ev Event) (Envelope, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return Envelope{Seq: seq, Type: ev.Kind(), Payload: b}, nil
}

// Unwrap decodes the payload into its variant.
func Unwrap(env Envelope) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch env.Type {
	case KindPlacementOccurred:
		ev, err = decode[PlacementOccurred](env.Payload)
	case KindRegionsCompleted:
		ev, err = decode[RegionsCompleted](env.Payload)
	case KindScoresUpdated:
		ev, err = decode[ScoresUpdated](env.Payload)
	case KindSessionFinished:
		ev, err = decode[SessionFinished](env.Payload)
	case KindTimeRemainingUpdated:
		ev, err = decode[TimeRemainingUpdated](env.Payload)
	case KindRankingUpdated:
		ev, err = decode[RankingUpdated](env.Payload)
	case KindSessionAborted:
		ev = SessionAborted{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ev, nil
}

func decode[E Event](raw json.RawMessage) (E, error) {
	var e E
	err := json.Unmarshal(raw, &e)
	return e, err
}
