package robot

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"botvac-bridge/internal/transport"
)

var fixedNow = time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)

type recordedRequest struct {
	URL     string
	Header  http.Header
	Body    []byte
	Command Command
}

// fakeRelay answers per command name from a queue; the last queued reply is
// repeated once the queue is drained.
type fakeRelay struct {
	t        *testing.T
	requests []recordedRequest
	replies  map[string][]string
	err      error
}

func newFakeRelay(t *testing.T) *fakeRelay {
	return &fakeRelay{t: t, replies: map[string][]string{}}
}

// on replaces the reply queue for cmd.
func (f *fakeRelay) on(cmd string, bodies ...string) *fakeRelay {
	f.replies[cmd] = bodies
	return f
}

func (f *fakeRelay) Post(ctx context.Context, url string, header http.Header, body []byte) (*transport.Response, error) {
	cmd, err := DecodeCommand(body)
	if err != nil {
		f.t.Fatalf("relay received undecodable body %q: %v", body, err)
	}
	f.requests = append(f.requests, recordedRequest{URL: url, Header: header.Clone(), Body: body, Command: cmd})
	if f.err != nil {
		return nil, f.err
	}

	queue := f.replies[cmd.Cmd]
	if len(queue) == 0 {
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"result":"ok"}`)}, nil
	}
	reply := queue[0]
	if len(queue) > 1 {
		f.replies[cmd.Cmd] = queue[1:]
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(reply)}, nil
}

func (f *fakeRelay) commands() []string {
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Command.Cmd
	}
	return out
}

type stateOpts struct {
	houseCleaning string
	spotCleaning  string
	result        string
	alert         interface{}
	schedule      bool
	omitServices  bool
}

func stateBody(o stateOpts) string {
	if o.result == "" {
		o.result = "ok"
	}
	payload := map[string]interface{}{
		"version": 1,
		"reqId":   "1",
		"result":  o.result,
		"data":    map[string]interface{}{},
		"error":   nil,
		"alert":   o.alert,
		"state":   1,
		"action":  0,
		"cleaning": map[string]interface{}{
			"category": 2, "mode": 1, "modifier": 1, "navigationMode": 1, "spotWidth": 0, "spotHeight": 0,
		},
		"details": map[string]interface{}{
			"isCharging": false, "isDocked": true, "dockHasBeenSeen": false, "charge": 98, "isScheduleEnabled": o.schedule,
		},
		"availableCommands": map[string]interface{}{
			"start": true, "stop": false, "pause": false, "resume": false, "goToBase": false,
		},
		"meta": map[string]interface{}{"modelName": "BotVacD7Connected", "firmware": "4.5.3-189"},
	}
	if !o.omitServices {
		services := map[string]interface{}{
			"findMe": "basic-1", "generalInfo": "basic-1", "localStats": "basic-1",
			"manualCleaning": "basic-1", "maps": "basic-2", "preferences": "basic-2", "schedule": "basic-2",
		}
		if o.houseCleaning != "" {
			services["houseCleaning"] = o.houseCleaning
		}
		if o.spotCleaning != "" {
			services["spotCleaning"] = o.spotCleaning
		}
		payload["availableServices"] = services
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func testIdentity(persistentMaps bool) Identity {
	return Identity{
		Serial:            "OPS01234-0123456789AB",
		Secret:            "s3cr3t",
		Name:              "Kitchen",
		Traits:            []string{"maps", "persistent_maps"},
		Endpoint:          "https://nucleo.neatocloud.com:4443",
		HasPersistentMaps: persistentMaps,
	}
}

func newTestRobot(t *testing.T, relay *fakeRelay, id Identity) *Robot {
	t.Helper()
	r, err := New(context.Background(), id, WithTransport(relay), WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	relay.requests = nil
	return r
}
