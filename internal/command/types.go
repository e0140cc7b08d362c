package command

import (
	"encoding/json"
	"time"
)

// Action names accepted by the dispatcher.
type Action string

const (
	ActionStart           Action = "start"
	ActionSpot            Action = "spot"
	ActionPause           Action = "pause"
	ActionResume          Action = "resume"
	ActionStop            Action = "stop"
	ActionDock            Action = "dock"
	ActionState           Action = "state"
	ActionScheduleEnable  Action = "schedule_enable"
	ActionScheduleDisable Action = "schedule_disable"
	ActionScheduleStatus  Action = "schedule_status"
	ActionGetSchedule     Action = "get_schedule"
	ActionLocate          Action = "locate"
	ActionGeneralInfo     Action = "general_info"
	ActionLocalStats      Action = "local_stats"
	ActionPreferences     Action = "preferences"
	ActionRobotInfo       Action = "robot_info"
	ActionMapBoundaries   Action = "map_boundaries"
	ActionDismissAlert    Action = "dismiss_alert"
)

// Request sources
const (
	SourceMQTT = "mqtt"
	SourceAPI  = "api"
	SourceCLI  = "cli"
)

// Request is one bridge request for one robot.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Serial string          `json:"serial,omitempty"`
	Action Action          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
	Source string          `json:"-"`
}

// Result is what the bridge reports back for a request.
type Result struct {
	ID        string      `json:"id"`
	Serial    string      `json:"serial"`
	Action    Action      `json:"action"`
	Status    string      `json:"status"`
	Result    string      `json:"result,omitempty"`
	Alert     string      `json:"alert,omitempty"`
	Error     string      `json:"error,omitempty"`
	FellBack  bool        `json:"fell_back,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Succeeded reports whether the robot accepted the request.
func (r Result) Succeeded() bool {
	return r.Status == StateSucceeded
}

type mapBoundariesParams struct {
	MapID string `json:"mapId"`
}
