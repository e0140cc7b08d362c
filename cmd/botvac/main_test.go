package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/vendor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stateReply = `{"result":"ok","state":1,"details":{"isScheduleEnabled":true},"availableServices":{"houseCleaning":"basic-4","spotCleaning":"basic-3"}}`

type relay struct {
	mu    sync.Mutex
	sent  []map[string]interface{}
	reply string
}

func (r *relay) Post(ctx context.Context, url string, header http.Header, body []byte) (*transport.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msg map[string]interface{}
	_ = json.Unmarshal(body, &msg)
	r.sent = append(r.sent, msg)
	if msg["cmd"] == "getRobotState" || r.reply == "" {
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(stateReply)}, nil
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(r.reply)}, nil
}

func (r *relay) last() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func newCloud(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"robots":[{"name":"Kitchen","serial":"A-1","secret_key":"s1","traits":["maps"],"nucleo_url":"https://nucleo.example:4443","mac_address":"aa:bb"}]}`))
	})
	mux.HandleFunc("/users/me/robots/A-1/persistent_maps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"pm-1"}]`))
	})
	srv := httptest.NewServer(mux)
	mux.HandleFunc("/users/me/robots/A-1/maps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"maps":[{"id":"m-9","url":"` + srv.URL + `/img/m-9/cleaning.png?sig=1"}]}`))
	})
	mux.HandleFunc("/img/m-9/cleaning.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PNG"))
	})
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, r *relay, args ...string) (string, error) {
	t.Helper()
	srv := newCloud(t)

	var out bytes.Buffer
	a := newApp(&out)
	a.resolveVendor = func(name string) (vendor.Vendor, error) {
		v, err := vendor.ByName(name)
		v.Endpoint = srv.URL + "/"
		return v, err
	}
	a.http = transport.NewWithClient(srv.Client())
	a.factory = func(ctx context.Context, id robot.Identity) (*robot.Robot, error) {
		return robot.New(ctx, id, robot.WithTransport(r))
	}

	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--token", "tok"))
	err := cmd.Execute()
	return out.String(), err
}

func TestRobots(t *testing.T) {
	out, err := execute(t, &relay{}, "robots")
	require.NoError(t, err)
	assert.Contains(t, out, "A-1")
	assert.Contains(t, out, "Kitchen")
	assert.Contains(t, out, "true")
}

func TestState(t *testing.T) {
	out, err := execute(t, &relay{}, "state", "A-1", "--out", "json")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "succeeded", res["status"])
}

func TestClean(t *testing.T) {
	r := &relay{reply: `{"result":"ok"}`}
	out, err := execute(t, r, "clean", "A-1", "--mode", "eco", "--navigation", "deep")
	require.NoError(t, err)
	assert.Contains(t, out, "A-1 start: succeeded")

	msg := r.last()
	assert.Equal(t, "startCleaning", msg["cmd"])
	params := msg["params"].(map[string]interface{})
	assert.EqualValues(t, robot.ModeEco, params["mode"])
	assert.EqualValues(t, robot.NavigationDeep, params["navigationMode"])
	assert.EqualValues(t, robot.CategoryPersistent, params["category"])
}

func TestCleanRejectsBadFlags(t *testing.T) {
	_, err := execute(t, &relay{}, "clean", "A-1", "--mode", "max")
	assert.Error(t, err)

	_, err = execute(t, &relay{}, "clean", "A-1", "--category", "3")
	assert.Error(t, err)
}

func TestRejectedCommandFails(t *testing.T) {
	r := &relay{reply: `{"result":"not_on_charge_base"}`}
	out, err := execute(t, r, "dock", "A-1")
	require.Error(t, err)
	assert.Contains(t, out, "rejected")
}

func TestSchedule(t *testing.T) {
	r := &relay{reply: `{"result":"ok"}`}

	out, err := execute(t, r, "schedule", "A-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"enabled": true`)

	_, err = execute(t, r, "schedule", "A-1", "off")
	require.NoError(t, err)
	assert.Equal(t, "disableSchedule", r.last()["cmd"])

	_, err = execute(t, r, "schedule", "A-1", "maybe")
	assert.Error(t, err)
}

func TestMapsDownload(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, &relay{}, "maps", "--download", dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "m-9-cleaning.png")
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(data))
}

func TestMissingCredentials(t *testing.T) {
	a := newApp(&bytes.Buffer{})
	cmd := newRootCmd(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"robots", "--token", ""})
	assert.Error(t, cmd.Execute())
}

func TestRobotsOnline(t *testing.T) {
	out, err := execute(t, &relay{}, "robots", "--online", "--out", "json")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "A-1", rows[0]["serial"])
	assert.Equal(t, true, rows[0]["has_persistent_maps"])
}

type otpCloud struct {
	mu    sync.Mutex
	sent  []map[string]string
	token map[string]string
}

func newOTPCloud(t *testing.T) (*otpCloud, *httptest.Server) {
	c := &otpCloud{}
	mux := http.NewServeMux()
	mux.HandleFunc("/passwordless/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.sent = append(c.sent, body)
		c.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.token = body
		c.mu.Unlock()
		_, _ = w.Write([]byte(`{"access_token":"at","id_token":"idt-1","expires_in":3600,"token_type":"Bearer"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return c, srv
}

func executeLogin(t *testing.T, stdin string, args ...string) (string, *otpCloud, error) {
	t.Helper()
	for _, key := range []string{"BOTVAC_TOKEN", "BOTVAC_EMAIL", "BOTVAC_PASSWORD", "BOTVAC_CLIENT_ID"} {
		t.Setenv(key, "")
	}
	cloud, srv := newOTPCloud(t)

	var out bytes.Buffer
	a := newApp(&out)
	a.resolveVendor = func(name string) (vendor.Vendor, error) {
		v := vendor.Vorwerk()
		v.PasswordlessEndpoint = srv.URL + "/passwordless/start"
		v.TokenEndpoint = srv.URL + "/oauth/token"
		return v, nil
	}
	a.http = transport.NewWithClient(srv.Client())

	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"login", "--vendor", "vorwerk"}, args...))
	err := cmd.Execute()
	return out.String(), cloud, err
}

func TestLogin(t *testing.T) {
	t.Run("Test code from stdin", func(t *testing.T) {
		out, cloud, err := executeLogin(t, "123456\n", "--email", "me@example.com", "--client-id", "cid")
		require.NoError(t, err)
		assert.Equal(t, "idt-1\n", out)

		require.Len(t, cloud.sent, 1)
		assert.Equal(t, "me@example.com", cloud.sent[0]["email"])
		assert.Equal(t, "cid", cloud.sent[0]["client_id"])
		assert.Equal(t, "123456", cloud.token["otp"])
		assert.Equal(t, "me@example.com", cloud.token["username"])
	})

	t.Run("Test code flag skips the email", func(t *testing.T) {
		out, cloud, err := executeLogin(t, "", "--email", "me@example.com", "--client-id", "cid", "--code", "999", "--out", "json")
		require.NoError(t, err)
		assert.Empty(t, cloud.sent)
		assert.Equal(t, "999", cloud.token["otp"])

		var tok map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &tok))
		assert.Equal(t, "idt-1", tok["id_token"])
	})

	t.Run("Test missing input", func(t *testing.T) {
		_, _, err := executeLogin(t, "", "--client-id", "cid")
		assert.ErrorContains(t, err, "--email")

		_, _, err = executeLogin(t, "", "--email", "me@example.com")
		assert.ErrorContains(t, err, "--client-id")

		_, cloud, err := executeLogin(t, "\n", "--email", "me@example.com", "--client-id", "cid")
		assert.ErrorContains(t, err, "no code")
		assert.Nil(t, cloud.token)
	})
}
