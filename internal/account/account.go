package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/utils"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// RobotFactory opens a session for one dashboard robot.
type RobotFactory func(ctx context.Context, id robot.Identity) (*robot.Robot, error)

// Account lists and opens the robots registered to one login.
type Account struct {
	session     Session
	factory     RobotFactory
	http        *transport.HTTPTransport
	concurrency int
}

type AccountOption func(*Account)

func WithRobotFactory(f RobotFactory) AccountOption {
	return func(a *Account) { a.factory = f }
}

// WithConcurrency bounds how many robots are contacted at once.
func WithConcurrency(n int) AccountOption {
	return func(a *Account) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func New(s Session, opts ...AccountOption) *Account {
	a := &Account{
		session:     s,
		http:        transport.NewHTTPTransport(transport.DefaultTimeout, nil),
		concurrency: defaultConcurrency,
	}
	a.factory = func(ctx context.Context, id robot.Identity) (*robot.Robot, error) {
		return robot.New(ctx, id, robot.WithVendor(s.Vendor()))
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DashboardRobot is one entry of the dashboard reply.
type DashboardRobot struct {
	Name       string   `json:"name"`
	Serial     string   `json:"serial"`
	SecretKey  string   `json:"secret_key"`
	Traits     []string `json:"traits"`
	NucleoURL  string   `json:"nucleo_url"`
	MacAddress *string  `json:"mac_address"`
	Model      string   `json:"model,omitempty"`
	Firmware   string   `json:"firmware,omitempty"`
}

type dashboard struct {
	Robots []DashboardRobot `json:"robots"`
}

// Identities reads the dashboard. Robots without a MAC address are not
// provisioned and are left out. No robot is contacted.
func (a *Account) Identities(ctx context.Context) ([]robot.Identity, error) {
	resp, err := a.session.Get(ctx, "dashboard")
	if err != nil {
		return nil, err
	}

	var d dashboard
	if err := json.Unmarshal(resp.Body, &d); err != nil {
		return nil, fmt.Errorf("%w: decode dashboard: %v", ErrCloud, err)
	}

	vendorName := a.session.Vendor().Name
	ids := make([]robot.Identity, 0, len(d.Robots))
	for _, r := range d.Robots {
		if r.MacAddress == nil {
			continue
		}
		ids = append(ids, robot.Identity{
			Serial:   r.Serial,
			Secret:   r.SecretKey,
			Name:     r.Name,
			Traits:   r.Traits,
			Endpoint: r.NucleoURL,
			Vendor:   vendorName,
		})
	}
	return ids, nil
}

// Robots opens a session with every dashboard robot, then sets each robot's
// persistent-map flag from the account's saved floor plans. Offline and
// unsupported robots are logged and skipped.
func (a *Account) Robots(ctx context.Context) ([]*robot.Robot, error) {
	ids, err := a.Identities(ctx)
	if err != nil {
		return nil, err
	}

	opened := make([]*robot.Robot, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			r, err := a.factory(gctx, id)
			switch {
			case err == nil:
				opened[i] = r
				return nil
			case errors.Is(err, robot.ErrUnsupportedDevice):
				utils.ForRobot(id.Serial).Warnf("Skipping robot '%s': %v", id.Name, err)
				return nil
			case isCommunicationError(err):
				utils.ForRobot(id.Serial).Warnf("Your '%s' robot is offline: %v", id.Name, err)
				return nil
			default:
				return fmt.Errorf("unable to add robot %s: %w", id.Serial, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	robots := make([]*robot.Robot, 0, len(opened))
	serials := make([]string, 0, len(opened))
	for _, r := range opened {
		if r != nil {
			robots = append(robots, r)
			serials = append(serials, r.Serial())
		}
	}

	maps, err := a.persistentMaps(ctx, serials)
	if err != nil {
		return nil, err
	}
	for _, r := range robots {
		r.SetHasPersistentMaps(len(maps[r.Serial()]) > 0)
	}
	return robots, nil
}

func isCommunicationError(err error) bool {
	var commErr *robot.CommunicationError
	return errors.As(err, &commErr)
}

// Maps returns the raw map listing of every dashboard robot, by serial.
func (a *Account) Maps(ctx context.Context) (map[string]json.RawMessage, error) {
	ids, err := a.Identities(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		resp, err := a.session.Get(ctx, fmt.Sprintf("users/me/robots/%s/maps", id.Serial))
		if err != nil {
			return nil, fmt.Errorf("unable to refresh robot maps: %w", err)
		}
		out[id.Serial] = json.RawMessage(resp.Body)
	}
	return out, nil
}

// PersistentMaps returns the saved floor plans of every dashboard robot.
func (a *Account) PersistentMaps(ctx context.Context) (map[string][]json.RawMessage, error) {
	ids, err := a.Identities(ctx)
	if err != nil {
		return nil, err
	}
	serials := make([]string, len(ids))
	for i, id := range ids {
		serials[i] = id.Serial
	}
	return a.persistentMaps(ctx, serials)
}

func (a *Account) persistentMaps(ctx context.Context, serials []string) (map[string][]json.RawMessage, error) {
	out := make(map[string][]json.RawMessage, len(serials))
	for _, serial := range serials {
		resp, err := a.session.Get(ctx, fmt.Sprintf("users/me/robots/%s/persistent_maps", serial))
		if err != nil {
			return nil, fmt.Errorf("unable to refresh persistent maps: %w", err)
		}
		var maps []json.RawMessage
		if err := json.Unmarshal(resp.Body, &maps); err != nil {
			return nil, fmt.Errorf("%w: decode persistent maps of %s: %v", ErrCloud, serial, err)
		}
		out[serial] = maps
	}
	return out, nil
}

// Sync writes the dashboard identities, with their persistent-map flags, to
// store. It returns how many identities were saved.
func (a *Account) Sync(ctx context.Context, store registry.Store) (int, error) {
	ids, err := a.Identities(ctx)
	if err != nil {
		return 0, err
	}
	serials := make([]string, len(ids))
	for i, id := range ids {
		serials[i] = id.Serial
	}
	maps, err := a.persistentMaps(ctx, serials)
	if err != nil {
		return 0, err
	}
	for i := range ids {
		ids[i].HasPersistentMaps = len(maps[ids[i].Serial]) > 0
	}
	if err := registry.SaveAll(ctx, store, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MapImage downloads a map image URL (as found in a map listing) into w.
func (a *Account) MapImage(ctx context.Context, url string, w io.Writer) error {
	resp, err := a.http.Get(ctx, url, http.Header{})
	if err != nil {
		return fmt.Errorf("unable to get robot map: %w", err)
	}
	_, err = w.Write(resp.Body)
	return err
}

// SaveMapImage downloads url into dir. Without a name, the file is named
// after the last two path segments of the URL.
func (a *Account) SaveMapImage(ctx context.Context, url, dir, name string) (string, error) {
	if name == "" {
		name = MapImageName(url)
	}
	dest := filepath.Join(dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := a.MapImage(ctx, url, f); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// MapImageName turns .../<map>/<file>?sig into "<map>-<file>".
func MapImageName(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) < 2 {
		return parts[len(parts)-1]
	}
	return parts[len(parts)-2] + "-" + parts[len(parts)-1]
}
