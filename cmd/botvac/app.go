package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"botvac-bridge/internal/account"
	"botvac-bridge/internal/command"
	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/session"
	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/vendor"
)

type app struct {
	email, password, token string
	vendorName, certPath   string
	format                 string
	timeout                time.Duration
	verbose                bool

	out io.Writer

	// swapped in tests
	resolveVendor func(name string) (vendor.Vendor, error)
	http          *transport.HTTPTransport
	factory       session.Factory
}

func newApp(out io.Writer) *app {
	return &app{out: out, format: "text", resolveVendor: vendor.ByName}
}

func (a *app) creds() account.Credentials {
	return account.Credentials{Email: a.email, Password: a.password, Token: a.token}
}

func (a *app) relayVendor() (vendor.Vendor, error) {
	v, err := a.resolveVendor(a.vendorName)
	if err != nil {
		return vendor.Vendor{}, err
	}
	v.CertPath = a.certPath
	return v, nil
}

func (a *app) login(ctx context.Context, opts ...account.AccountOption) (*account.Account, error) {
	v, err := a.relayVendor()
	if err != nil {
		return nil, err
	}
	var sessionOpts []account.Option
	if a.http != nil {
		sessionOpts = append(sessionOpts, account.WithHTTP(a.http))
	}
	s, err := account.Login(ctx, a.creds(), v, sessionOpts...)
	if err != nil {
		return nil, err
	}
	return account.New(s, opts...), nil
}

// robotFactory opens relay sessions for the configured vendor.
func (a *app) robotFactory() (session.Factory, error) {
	if a.factory != nil {
		return a.factory, nil
	}
	v, err := a.relayVendor()
	if err != nil {
		return nil, err
	}
	return session.NewFactory(v, a.timeout), nil
}

// dispatcher syncs the dashboard into a throwaway store and returns a
// dispatcher over it.
func (a *app) dispatcher(ctx context.Context) (*command.Dispatcher, error) {
	acct, err := a.login(ctx)
	if err != nil {
		return nil, err
	}
	store := registry.NewMemoryStore()
	if _, err := acct.Sync(ctx, store); err != nil {
		return nil, err
	}

	factory, err := a.robotFactory()
	if err != nil {
		return nil, err
	}
	return command.NewDispatcher(session.NewPool(store, factory, 0), nil), nil
}

// run dispatches one action and prints its result. A result other than
// succeeded is returned as an error so the exit code reflects it.
func (a *app) run(ctx context.Context, serial string, action command.Action, params interface{}) error {
	d, err := a.dispatcher(ctx)
	if err != nil {
		return err
	}

	var raw json.RawMessage
	if params != nil {
		if raw, err = json.Marshal(params); err != nil {
			return err
		}
	}
	res := d.Dispatch(ctx, command.Request{Serial: serial, Action: action, Params: raw, Source: command.SourceCLI})
	a.printResult(res)
	if !res.Succeeded() {
		if res.Error != "" {
			return fmt.Errorf("%s %s: %s", action, res.Status, res.Error)
		}
		return fmt.Errorf("%s %s", action, res.Status)
	}
	return nil
}

func (a *app) printResult(res command.Result) {
	if a.format == "json" {
		a.printJSON(res)
		return
	}
	fmt.Fprintf(a.out, "%s %s: %s", res.Serial, res.Action, res.Status)
	if res.Result != "" {
		fmt.Fprintf(a.out, " (result %s", res.Result)
		if res.Alert != "" {
			fmt.Fprintf(a.out, ", alert %s", res.Alert)
		}
		fmt.Fprint(a.out, ")")
	}
	if res.FellBack {
		fmt.Fprint(a.out, " [retried without persistent map]")
	}
	fmt.Fprintln(a.out)
	if res.Data != nil {
		a.printJSON(res.Data)
	}
}

func (a *app) printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(a.out, v)
		return
	}
	fmt.Fprintln(a.out, string(b))
}

func (a *app) printRobots(ids []robot.Identity) {
	if a.format == "json" {
		type row struct {
			Serial            string   `json:"serial"`
			Name              string   `json:"name"`
			Traits            []string `json:"traits"`
			HasPersistentMaps bool     `json:"has_persistent_maps"`
		}
		rows := make([]row, len(ids))
		for i, id := range ids {
			rows[i] = row{id.Serial, id.Name, id.Traits, id.HasPersistentMaps}
		}
		a.printJSON(rows)
		return
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tNAME\tTRAITS\tFLOOR PLAN")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t%v\t%t\n", id.Serial, id.Name, id.Traits, id.HasPersistentMaps)
	}
	w.Flush()
}
