package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Relay command names.
const (
	CmdStartCleaning       = "startCleaning"
	CmdPauseCleaning       = "pauseCleaning"
	CmdResumeCleaning      = "resumeCleaning"
	CmdStopCleaning        = "stopCleaning"
	CmdSendToBase          = "sendToBase"
	CmdGetRobotState       = "getRobotState"
	CmdEnableSchedule      = "enableSchedule"
	CmdDisableSchedule     = "disableSchedule"
	CmdGetSchedule         = "getSchedule"
	CmdFindMe              = "findMe"
	CmdGetGeneralInfo      = "getGeneralInfo"
	CmdGetLocalStats       = "getLocalStats"
	CmdGetPreferences      = "getPreferences"
	CmdGetMapBoundaries    = "getMapBoundaries"
	CmdGetRobotInfo        = "getRobotInfo"
	CmdDismissCurrentAlert = "dismissCurrentAlert"
)

// requestID is constant; the relay does not correlate replies by it.
const requestID = "1"

// Params is the command-specific argument object.
type Params map[string]interface{}

// Command is the envelope posted to the relay.
type Command struct {
	ReqID  string `json:"reqId"`
	Cmd    string `json:"cmd"`
	Params Params `json:"params,omitempty"`
}

func NewCommand(cmd string, params Params) Command {
	return Command{ReqID: requestID, Cmd: cmd, Params: params}
}

// Encode renders the wire form.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// withParam returns a copy of c with one parameter replaced.
func (c Command) withParam(key string, value interface{}) Command {
	params := make(Params, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	params[key] = value
	return Command{ReqID: c.ReqID, Cmd: c.Cmd, Params: params}
}

// DecodeCommand parses a wire envelope. Numbers are kept as json.Number so
// integer parameters come back unchanged.
func DecodeCommand(data []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var c Command
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	return c, nil
}
