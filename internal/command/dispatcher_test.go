package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"botvac-bridge/internal/database"
	"botvac-bridge/internal/models"
	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

const okState = `{"result":"ok","state":1,"alert":null,"details":{"isScheduleEnabled":true,"charge":80},"availableServices":{"houseCleaning":"basic-4","spotCleaning":"basic-3"}}`

// scriptedRelay answers by command name and remembers what it was sent.
type scriptedRelay struct {
	mu      sync.Mutex
	replies map[string][]string
	sent    []robot.Command
}

func (s *scriptedRelay) Post(ctx context.Context, url string, header http.Header, body []byte) (*transport.Response, error) {
	cmd, err := robot.DecodeCommand(body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)

	queue := s.replies[cmd.Cmd]
	reply := `{"result":"ok","data":{}}`
	if cmd.Cmd == robot.CmdGetRobotState {
		reply = okState
	}
	if len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			s.replies[cmd.Cmd] = queue[1:]
		}
	}
	if reply == "down" {
		return nil, errors.New("connection refused")
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(reply)}, nil
}

type fakeSessions struct {
	robots map[string]*robot.Robot
	err    error
}

func (f *fakeSessions) Get(ctx context.Context, serial string) (*robot.Robot, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.robots[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, serial)
	}
	return r, nil
}

func setup(t *testing.T, id robot.Identity, replies map[string][]string) (*Dispatcher, *scriptedRelay, *database.MemoryRecorder) {
	relay := &scriptedRelay{replies: map[string][]string{}}
	r, err := robot.New(context.Background(), id, robot.WithTransport(relay))
	require.NoError(t, err)
	relay.sent = nil
	for k, v := range replies {
		relay.replies[k] = v
	}

	rec := database.NewMemoryRecorder()
	d := NewDispatcher(&fakeSessions{robots: map[string]*robot.Robot{id.Serial: r}}, rec)
	return d, relay, rec
}

func identity() robot.Identity {
	return robot.Identity{Serial: "SN-1", Secret: "x", Name: "Kitchen"}
}

func TestDispatchSucceeded(t *testing.T) {
	d, relay, rec := setup(t, identity(), nil)

	res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionDock, Source: SourceMQTT})
	assert.Equal(t, StateSucceeded, res.Status)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "ok", res.Result)
	assert.NotEmpty(t, res.ID)
	require.Len(t, relay.sent, 1)
	assert.Equal(t, robot.CmdSendToBase, relay.sent[0].Cmd)

	logs := rec.All()
	require.Len(t, logs, 1)
	assert.Equal(t, res.ID, logs[0].ExecutionID)
	assert.Equal(t, "dock", logs[0].Action)
	assert.Equal(t, StateSucceeded, logs[0].Status)
	assert.Equal(t, SourceMQTT, logs[0].Source)
}

func TestDispatchKeepsCallerID(t *testing.T) {
	d, _, _ := setup(t, identity(), nil)
	res := d.Dispatch(context.Background(), Request{ID: "req-42", Serial: "SN-1", Action: ActionLocate})
	assert.Equal(t, "req-42", res.ID)
}

func TestDispatchReplacesOversizedID(t *testing.T) {
	d, _, rec := setup(t, identity(), nil)

	long := strings.Repeat("x", MaxIDLength+1)
	res := d.Dispatch(context.Background(), Request{ID: long, Serial: "SN-1", Action: ActionLocate})
	assert.NotEqual(t, long, res.ID)
	assert.LessOrEqual(t, len(res.ID), MaxIDLength)

	edge := strings.Repeat("y", MaxIDLength)
	res = d.Dispatch(context.Background(), Request{ID: edge, Serial: "SN-1", Action: ActionLocate})
	assert.Equal(t, edge, res.ID)

	logs := rec.All()
	require.Len(t, logs, 2)
	assert.Equal(t, edge, logs[1].ExecutionID)
}

func TestExecutionIDColumnFitsMaxID(t *testing.T) {
	s, err := schema.Parse(&models.CommandLog{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	field := s.LookUpField("ExecutionID")
	require.NotNil(t, field)
	assert.Equal(t, MaxIDLength, field.Size)
	assert.Equal(t, maxErrorLength, s.LookUpField("Error").Size)
}

// blockingSessions holds Get until the caller's context is done.
type blockingSessions struct{}

func (blockingSessions) Get(ctx context.Context, serial string) (*robot.Robot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// ctxRecorder remembers the context error seen at record time.
type ctxRecorder struct {
	mu      sync.Mutex
	entries []*models.CommandLog
	ctxErrs []error
}

func (c *ctxRecorder) Record(ctx context.Context, entry *models.CommandLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	if err := ctx.Err(); err != nil {
		return err
	}
	c.entries = append(c.entries, entry)
	return nil
}

func TestDispatchRecordsAfterRequestTimeout(t *testing.T) {
	rec := &ctxRecorder{}
	d := NewDispatcher(blockingSessions{}, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := d.Dispatch(ctx, Request{Serial: "SN-1", Action: ActionDock})

	assert.Equal(t, StateFailed, res.Status)
	assert.Contains(t, res.Error, context.DeadlineExceeded.Error())
	require.Len(t, rec.ctxErrs, 1)
	assert.NoError(t, rec.ctxErrs[0])
	require.Len(t, rec.entries, 1)
	assert.Equal(t, res.ID, rec.entries[0].ExecutionID)
	assert.Equal(t, StateFailed, rec.entries[0].Status)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii", "abcdef", 3, "abc"},
		{"inside a rune", "ab로봇", 3, "ab"},
		{"rune boundary", "ab로봇", 5, "ab로"},
		{"inside a 4-byte rune", "a🤖b", 3, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}

func TestDispatchTruncatesErrorOnRuneBoundary(t *testing.T) {
	rec := database.NewMemoryRecorder()
	d := NewDispatcher(&fakeSessions{err: errors.New(strings.Repeat("연결 실패 ", 100))}, rec)

	res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionDock})
	require.Equal(t, StateFailed, res.Status)
	logs := rec.All()
	require.Len(t, logs, 1)
	assert.LessOrEqual(t, len(logs[0].Error), maxErrorLength)
	assert.True(t, utf8.ValidString(logs[0].Error))
}

func TestDispatchRejected(t *testing.T) {
	d, _, rec := setup(t, identity(), map[string][]string{
		robot.CmdPauseCleaning: {`{"result":"command_rejected"}`},
	})

	res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionPause})
	assert.Equal(t, StateRejected, res.Status)
	assert.Equal(t, "command_rejected", res.Result)
	assert.Contains(t, res.Error, "command_rejected")
	assert.Equal(t, StateRejected, rec.All()[0].Status)
}

func TestDispatchFailed(t *testing.T) {
	t.Run("Test relay down", func(t *testing.T) {
		d, _, rec := setup(t, identity(), map[string][]string{robot.CmdStopCleaning: {"down"}})
		res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionStop})
		assert.Equal(t, StateFailed, res.Status)
		assert.Contains(t, res.Error, "connection refused")
		assert.Len(t, rec.All(), 1)
	})

	t.Run("Test unknown robot", func(t *testing.T) {
		d, relay, rec := setup(t, identity(), nil)
		res := d.Dispatch(context.Background(), Request{Serial: "nope", Action: ActionStop})
		assert.Equal(t, StateFailed, res.Status)
		assert.Empty(t, relay.sent)
		assert.Len(t, rec.All(), 1)
	})

	t.Run("Test unsupported device", func(t *testing.T) {
		rec := database.NewMemoryRecorder()
		d := NewDispatcher(&fakeSessions{err: robot.ErrUnsupportedDevice}, rec)
		res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionStart})
		assert.Equal(t, StateFailed, res.Status)
		assert.Contains(t, res.Error, "houseCleaning")
	})

	t.Run("Test unknown action", func(t *testing.T) {
		d, relay, rec := setup(t, identity(), nil)
		res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: "dance"})
		assert.Equal(t, StateFailed, res.Status)
		assert.Contains(t, res.Error, "unknown action")
		assert.Empty(t, relay.sent)
		assert.Len(t, rec.All(), 1)
	})

	t.Run("Test bad params", func(t *testing.T) {
		d, relay, _ := setup(t, identity(), nil)
		res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionSpot, Params: json.RawMessage(`{"spotWidth":"wide"}`)})
		assert.Equal(t, StateFailed, res.Status)
		assert.Empty(t, relay.sent)
	})
}

func TestDispatchStartWithFallback(t *testing.T) {
	id := identity()
	id.HasPersistentMaps = true
	d, relay, rec := setup(t, id, map[string][]string{
		robot.CmdStartCleaning: {
			`{"result":"ok","alert":"nav_floorplan_load_fail","state":1,"availableServices":{}}`,
			`{"result":"ok","alert":null,"state":2,"availableServices":{}}`,
		},
	})

	res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionStart, Params: json.RawMessage(`{"mode":1,"mapId":"m-1"}`)})
	assert.Equal(t, StateSucceeded, res.Status)
	assert.True(t, res.FellBack)
	require.Len(t, relay.sent, 2)
	assert.Equal(t, json.Number("4"), relay.sent[0].Params["category"])
	assert.Equal(t, json.Number("2"), relay.sent[1].Params["category"])
	assert.Equal(t, json.Number("1"), relay.sent[1].Params["mode"])
	assert.Equal(t, "m-1", relay.sent[1].Params["mapId"])

	logs := rec.All()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].FellBack)
	assert.Equal(t, "m-1", logs[0].Params["mapId"])
}

func TestDispatchStartUsesPreference(t *testing.T) {
	id := identity()
	id.Cleaning = &robot.CleaningRequest{Mode: robot.ModeEco, NavigationMode: robot.NavigationDeep}
	d, relay, _ := setup(t, id, nil)

	res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionStart, Params: json.RawMessage(`{"navigationMode":2}`)})
	require.Equal(t, StateSucceeded, res.Status)
	assert.Equal(t, json.Number("1"), relay.sent[0].Params["mode"])
	assert.Equal(t, json.Number("2"), relay.sent[0].Params["navigationMode"])
}

func TestDispatchData(t *testing.T) {
	d, relay, _ := setup(t, identity(), map[string][]string{
		robot.CmdGetMapBoundaries: {`{"result":"ok","data":{"boundaries":[]}}`},
	})

	res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionScheduleStatus})
	assert.Equal(t, map[string]bool{"enabled": true}, res.Data)

	res = d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionMapBoundaries, Params: json.RawMessage(`{"mapId":"m-9"}`)})
	assert.Equal(t, map[string]interface{}{"boundaries": []interface{}{}}, res.Data)
	assert.Equal(t, "m-9", relay.sent[len(relay.sent)-1].Params["mapId"])

	res = d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: ActionState})
	state, ok := res.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), state["state"])
}

func TestEveryActionIsDispatchable(t *testing.T) {
	d, _, _ := setup(t, identity(), nil)
	for _, a := range Actions() {
		res := d.Dispatch(context.Background(), Request{Serial: "SN-1", Action: a})
		assert.Equal(t, StateSucceeded, res.Status, string(a))
	}
	assert.Len(t, Actions(), 18)
	assert.True(t, IsValidAction(ActionDismissAlert))
	assert.False(t, IsValidAction("dance"))
}
