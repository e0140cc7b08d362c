package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"botvac-bridge/internal/metrics"
	"botvac-bridge/internal/models"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/utils"

	"github.com/google/uuid"
)

// ErrUnknownAction is returned for actions the dispatcher does not map.
var ErrUnknownAction = errors.New("unknown action")

const (
	// MaxIDLength bounds caller supplied request ids. Longer ids are
	// replaced so the audit entry still fits its column.
	MaxIDLength = 64

	maxErrorLength = 500

	// recordTimeout bounds the audit write, which runs detached from the
	// request context so a timed out request is still recorded.
	recordTimeout = 5 * time.Second
)

// SessionProvider hands out robot sessions by serial.
type SessionProvider interface {
	Get(ctx context.Context, serial string) (*robot.Robot, error)
}

// Recorder stores one audit entry per request.
type Recorder interface {
	Record(ctx context.Context, entry *models.CommandLog) error
}

// outcome is what an action produced: the relay reply it is judged by and
// optional data to hand back to the caller.
type outcome struct {
	resp *robot.Response
	data interface{}
}

type actionFunc func(ctx context.Context, r *robot.Robot, params json.RawMessage) (outcome, error)

// simple wraps a parameterless robot method.
func simple(method func(*robot.Robot, context.Context) (*robot.Response, error)) actionFunc {
	return func(ctx context.Context, r *robot.Robot, _ json.RawMessage) (outcome, error) {
		resp, err := method(r, ctx)
		if err != nil {
			return outcome{}, err
		}
		return outcome{resp: resp, data: dataOf(resp)}, nil
	}
}

func dataOf(resp *robot.Response) interface{} {
	if resp == nil || resp.Payload == nil {
		return nil
	}
	if data, ok := resp.Payload["data"]; ok {
		return data
	}
	return nil
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

var actions = map[Action]actionFunc{
	ActionStart:           startCleaning,
	ActionSpot:            spotCleaning,
	ActionPause:           simple((*robot.Robot).PauseCleaning),
	ActionResume:          simple((*robot.Robot).ResumeCleaning),
	ActionStop:            simple((*robot.Robot).StopCleaning),
	ActionDock:            simple((*robot.Robot).SendToBase),
	ActionState:           robotState,
	ActionScheduleEnable:  simple((*robot.Robot).EnableSchedule),
	ActionScheduleDisable: simple((*robot.Robot).DisableSchedule),
	ActionScheduleStatus:  scheduleStatus,
	ActionGetSchedule:     simple((*robot.Robot).GetSchedule),
	ActionLocate:          simple((*robot.Robot).Locate),
	ActionGeneralInfo:     simple((*robot.Robot).GetGeneralInfo),
	ActionLocalStats:      simple((*robot.Robot).GetLocalStats),
	ActionPreferences:     simple((*robot.Robot).GetPreferences),
	ActionRobotInfo:       simple((*robot.Robot).GetRobotInfo),
	ActionMapBoundaries:   mapBoundaries,
	ActionDismissAlert:    simple((*robot.Robot).DismissCurrentAlert),
}

// startCleaning applies params over the robot's preferred run, if any.
func startCleaning(ctx context.Context, r *robot.Robot, params json.RawMessage) (outcome, error) {
	var req robot.CleaningRequest
	if pref := r.Identity().Cleaning; pref != nil {
		req = *pref
	}
	if err := decodeParams(params, &req); err != nil {
		return outcome{}, err
	}
	resp, err := r.StartCleaning(ctx, req)
	if err != nil {
		return outcome{}, err
	}
	return outcome{resp: resp}, nil
}

func spotCleaning(ctx context.Context, r *robot.Robot, params json.RawMessage) (outcome, error) {
	var req robot.SpotRequest
	if err := decodeParams(params, &req); err != nil {
		return outcome{}, err
	}
	resp, err := r.StartSpotCleaning(ctx, req)
	if err != nil {
		return outcome{}, err
	}
	return outcome{resp: resp}, nil
}

func robotState(ctx context.Context, r *robot.Robot, _ json.RawMessage) (outcome, error) {
	resp, err := r.GetRobotState(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{resp: resp, data: resp.Payload}, nil
}

func scheduleStatus(ctx context.Context, r *robot.Robot, _ json.RawMessage) (outcome, error) {
	resp, err := r.GetRobotState(ctx)
	if err != nil {
		return outcome{}, err
	}
	state, err := resp.State()
	if err != nil {
		return outcome{}, err
	}
	return outcome{resp: resp, data: map[string]bool{"enabled": state.Details.IsScheduleEnabled}}, nil
}

func mapBoundaries(ctx context.Context, r *robot.Robot, params json.RawMessage) (outcome, error) {
	var p mapBoundariesParams
	if err := decodeParams(params, &p); err != nil {
		return outcome{}, err
	}
	resp, err := r.GetMapBoundaries(ctx, p.MapID)
	if err != nil {
		return outcome{}, err
	}
	return outcome{resp: resp, data: dataOf(resp)}, nil
}

// Actions lists the supported action names, sorted.
func Actions() []Action {
	out := make([]Action, 0, len(actions))
	for a := range actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsValidAction reports whether a is a supported action.
func IsValidAction(a Action) bool {
	_, ok := actions[a]
	return ok
}

// Dispatcher runs bridge requests against robot sessions.
type Dispatcher struct {
	sessions SessionProvider
	recorder Recorder
	now      func() time.Time
}

// NewDispatcher returns a dispatcher over sessions. A nil recorder disables
// the audit log.
func NewDispatcher(sessions SessionProvider, recorder Recorder) *Dispatcher {
	return &Dispatcher{sessions: sessions, recorder: recorder, now: time.Now}
}

// Dispatch runs one request to a final state and records it. It never
// returns an error; failures are reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	switch {
	case req.ID == "":
		req.ID = uuid.NewString()
	case len(req.ID) > MaxIDLength:
		id := uuid.NewString()
		utils.ForRobot(req.Serial).Warnf("Request id longer than %d bytes, using %s", MaxIDLength, id)
		req.ID = id
	}
	start := d.now()
	lc := NewLifecycle(req.ID, req.Serial, req.Action)

	res := Result{ID: req.ID, Serial: req.Serial, Action: req.Action}
	out, err := d.run(ctx, lc, req)
	switch {
	case err != nil:
		res.Error = err.Error()
	case out.resp != nil:
		res.Result = out.resp.Result()
		res.Alert = out.resp.Alert()
		res.FellBack = out.resp.FellBack
		res.Data = out.data
		if !out.resp.OK() {
			res.Error = lc.Reason
		}
	}
	res.Status = lc.Current()
	res.Timestamp = d.now()

	metrics.BridgeRequests.WithLabelValues(string(req.Action), res.Status).Inc()
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	d.record(recCtx, req, res, res.Timestamp.Sub(start))
	return res
}

func (d *Dispatcher) run(ctx context.Context, lc *Lifecycle, req Request) (outcome, error) {
	action, ok := actions[req.Action]
	if !ok {
		err := fmt.Errorf("%w %q", ErrUnknownAction, req.Action)
		lc.Fail(err)
		return outcome{}, err
	}
	if req.Serial == "" {
		err := errors.New("missing robot serial")
		lc.Fail(err)
		return outcome{}, err
	}

	r, err := d.sessions.Get(ctx, req.Serial)
	if err != nil {
		lc.Fail(err)
		return outcome{}, err
	}

	if err := lc.Sent(); err != nil {
		return outcome{}, err
	}
	out, err := action(ctx, r, req.Params)
	if err != nil {
		lc.Fail(err)
		return outcome{}, err
	}

	if out.resp.OK() {
		lc.Acknowledge()
	} else {
		lc.Reject(fmt.Sprintf("result %s, alert %s", out.resp.Result(), out.resp.Alert()))
	}
	return out, nil
}

func (d *Dispatcher) record(ctx context.Context, req Request, res Result, took time.Duration) {
	if d.recorder == nil {
		return
	}

	var params models.JSON
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			params = models.JSON{"raw": string(req.Params)}
		}
	}

	entry := &models.CommandLog{
		ExecutionID: res.ID,
		Serial:      res.Serial,
		Action:      string(res.Action),
		Source:      req.Source,
		Params:      params,
		Status:      res.Status,
		Result:      res.Result,
		Alert:       res.Alert,
		Error:       truncate(res.Error, maxErrorLength),
		FellBack:    res.FellBack,
		DurationMs:  took.Milliseconds(),
		CreatedAt:   res.Timestamp,
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		utils.ForRobot(res.Serial).Errorf("Failed to record command %s: %v", res.ID, err)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
