package robot

import (
	"encoding/json"
	"fmt"
)

// Response is a relay reply that passed the transport layer.
type Response struct {
	StatusCode int
	Body       []byte
	Payload    map[string]interface{}
	Validation ValidationResult

	// FellBack is set on the reply to a startCleaning that was resent with a
	// non-persistent map.
	FellBack bool
}

func (r *Response) Result() string {
	return r.stringField("result")
}

// Alert returns the alert code, or "" when absent or null.
func (r *Response) Alert() string {
	return r.stringField("alert")
}

func (r *Response) OK() bool {
	return r.Result() == ResultOK
}

func (r *Response) stringField(key string) string {
	if r == nil || r.Payload == nil {
		return ""
	}
	s, _ := r.Payload[key].(string)
	return s
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// State decodes the body as a robot state snapshot.
func (r *Response) State() (*RobotState, error) {
	var s RobotState
	if err := r.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode robot state: %w", err)
	}
	return &s, nil
}

type RobotState struct {
	Version           int                    `json:"version"`
	ReqID             string                 `json:"reqId"`
	Result            string                 `json:"result"`
	Data              map[string]interface{} `json:"data,omitempty"`
	State             int                    `json:"state"`
	Action            int                    `json:"action"`
	Error             *string                `json:"error"`
	Alert             *string                `json:"alert"`
	Cleaning          CleaningInfo           `json:"cleaning"`
	Details           Details                `json:"details"`
	AvailableCommands AvailableCommands      `json:"availableCommands"`
	AvailableServices map[string]string      `json:"availableServices"`
	Meta              Meta                   `json:"meta"`
}

type CleaningInfo struct {
	Category       int `json:"category"`
	Mode           int `json:"mode"`
	Modifier       int `json:"modifier"`
	NavigationMode int `json:"navigationMode"`
	SpotWidth      int `json:"spotWidth"`
	SpotHeight     int `json:"spotHeight"`
}

type Details struct {
	IsCharging        bool `json:"isCharging"`
	IsDocked          bool `json:"isDocked"`
	DockHasBeenSeen   bool `json:"dockHasBeenSeen"`
	Charge            int  `json:"charge"`
	IsScheduleEnabled bool `json:"isScheduleEnabled"`
}

type AvailableCommands struct {
	Start    bool `json:"start"`
	Stop     bool `json:"stop"`
	Pause    bool `json:"pause"`
	Resume   bool `json:"resume"`
	GoToBase bool `json:"goToBase"`
}

type Meta struct {
	ModelName string `json:"modelName"`
	Firmware  string `json:"firmware"`
}

// Robot state codes reported in the "state" field.
const (
	StateInvalid = 0
	StateIdle    = 1
	StateBusy    = 2
	StatePaused  = 3
	StateError   = 4
)

func StateName(code int) string {
	switch code {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	}
	return "invalid"
}
