package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shubham-shewale/market-pulse/pkg/models"
	"github.com/shubham-shewale/market-pulse/pkg/symbols"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoAliases     = errors.New("no aliases")
)

// Envelope is every frame on the wire, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Command is a decoded inbound subscribe or unsubscribe.
type Command struct {
	Action  string
	Aliases []string
}

// ParseCommand decodes an inbound frame. Data is either one alias or an array
// of aliases; aliases are normalized and blanks dropped.
func ParseCommand(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Command{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case ActionSubscribe, ActionUnsubscribe:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownAction, env.Event)
	}

	var raw []string
	var single string
	if err := json.Unmarshal(env.Data, &single); err == nil {
		raw = []string{single}
	} else if err := json.Unmarshal(env.Data, &raw); err != nil {
		return Command{}, fmt.Errorf("decode aliases: %w", err)
	}

	cmd := Command{Action: env.Event}
	for _, a := range raw {
		if a = symbols.Normalize(a); a != "" {
			cmd.Aliases = append(cmd.Aliases, a)
		}
	}
	if len(cmd.Aliases) == 0 {
		return Command{}, ErrNoAliases
	}
	return cmd, nil
}

// Encode renders an event as an outbound frame.
func Encode(ev models.Event) ([]byte, error) {
	return json.Marshal(Envelope{Event: ev.Name, Data: ev.Payload})
}
