// Package robot implements the signed command protocol spoken with a robot's
// cloud relay: payload encoding per service version, request signing,
// response validation and the cleaning fallback policy.
package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"botvac-bridge/internal/metrics"
	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/utils"
	"botvac-bridge/internal/vendor"

	"github.com/sirupsen/logrus"
)

const DefaultEndpoint = "https://nucleo.neatocloud.com:4443"

// Alerts meaning the saved floor plan could not be used.
var floorplanAlerts = map[string]bool{
	"nav_floorplan_load_fail":         true,
	"nav_floorplan_localization_fail": true,
	"nav_floorplan_not_created":       true,
}

// Poster sends one signed request to the relay.
type Poster interface {
	Post(ctx context.Context, url string, header http.Header, body []byte) (*transport.Response, error)
}

// Identity is what the account layer knows about a robot.
type Identity struct {
	Serial            string   `json:"serial" yaml:"serial"`
	Secret            string   `json:"secret" yaml:"secret"`
	Name              string   `json:"name" yaml:"name"`
	Traits            []string `json:"traits" yaml:"traits"`
	Endpoint          string   `json:"endpoint" yaml:"endpoint"`
	Vendor            string   `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	HasPersistentMaps bool     `json:"has_persistent_maps" yaml:"has_persistent_maps"`

	// Cleaning is the preferred run used when a caller does not specify one.
	Cleaning *CleaningRequest `json:"cleaning,omitempty" yaml:"-"`
}

// HasTrait reports whether the robot advertises trait.
func (id Identity) HasTrait(trait string) bool {
	for _, t := range id.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// Robot is a session with one robot. It is safe to use from one goroutine per
// call; it holds no locks, and the only mutable field is the persistent-map flag.
type Robot struct {
	identity  Identity
	vendor    vendor.Vendor
	url       string
	transport Poster
	signer    Signer
	log       *logrus.Entry

	serviceVersion ServiceVersion
	spotVersion    ServiceVersion

	hasPersistentMaps atomic.Bool
}

type Option func(*Robot)

func WithTransport(p Poster) Option {
	return func(r *Robot) { r.transport = p }
}

func WithVendor(v vendor.Vendor) Option {
	return func(r *Robot) { r.vendor = v }
}

// WithClock overrides the time source used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(r *Robot) { r.signer = NewSigner(now) }
}

// New opens a session and checks that the robot speaks a supported
// houseCleaning version. It sends exactly one getRobotState; when the version
// is missing or unknown it returns ErrUnsupportedDevice and nothing else is sent.
func New(ctx context.Context, id Identity, opts ...Option) (*Robot, error) {
	if id.Endpoint == "" {
		id.Endpoint = DefaultEndpoint
	}
	id.Traits = append([]string(nil), id.Traits...)

	r := &Robot{
		identity: id,
		vendor:   vendor.Neato(),
		signer:   NewSigner(nil),
		log:      utils.ForRobot(id.Serial),
	}
	r.hasPersistentMaps.Store(id.HasPersistentMaps)

	for _, opt := range opts {
		opt(r)
	}

	if r.transport == nil {
		tlsConfig, err := r.vendor.TLSConfig()
		if err != nil {
			return nil, err
		}
		r.transport = transport.NewHTTPTransport(transport.DefaultTimeout, tlsConfig)
	}

	u, err := messagesURL(id.Endpoint, r.vendor.Name, id.Serial)
	if err != nil {
		return nil, err
	}
	r.url = u

	resp, err := r.GetRobotState(ctx)
	if err != nil {
		return nil, err
	}

	services := availableServices(resp.Payload)
	houseCleaning, ok := services["houseCleaning"]
	if !ok || !ServiceVersion(houseCleaning).Supported() {
		metrics.UnsupportedDevices.Inc()
		r.log.Warnf("Robot %s advertises unsupported houseCleaning service %q", id.Serial, houseCleaning)
		return nil, fmt.Errorf("%w (serial %s, houseCleaning %q)", ErrUnsupportedDevice, id.Serial, houseCleaning)
	}
	r.serviceVersion = ServiceVersion(houseCleaning)
	r.spotVersion = ServiceVersion(services["spotCleaning"])

	r.log.Infof("Robot %s ready (houseCleaning %s, spotCleaning %s)", id.Serial, r.serviceVersion, r.spotVersion)
	return r, nil
}

// messagesURL builds the relay URL. The port of the advertised endpoint is
// dropped; the relay is only reachable on the default HTTPS port.
func messagesURL(endpoint, vendorName, serial string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid robot endpoint %q", endpoint)
	}
	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	base := strings.TrimRight(u.String(), "/")
	return fmt.Sprintf("%s/vendors/%s/robots/%s/messages", base, url.PathEscape(vendorName), url.PathEscape(serial)), nil
}

func availableServices(payload map[string]interface{}) map[string]string {
	out := map[string]string{}
	raw, ok := payload["availableServices"].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (r *Robot) Serial() string                 { return r.identity.Serial }
func (r *Robot) Name() string                   { return r.identity.Name }
func (r *Robot) Traits() []string               { return append([]string(nil), r.identity.Traits...) }
func (r *Robot) URL() string                    { return r.url }
func (r *Robot) Vendor() vendor.Vendor          { return r.vendor }
func (r *Robot) ServiceVersion() ServiceVersion { return r.serviceVersion }

// SpotCleaningVersion is the spotCleaning dialect seen at construction; empty
// when the robot does not advertise spot cleaning.
func (r *Robot) SpotCleaningVersion() ServiceVersion { return r.spotVersion }

// Identity returns a copy carrying the current persistent-map flag.
func (r *Robot) Identity() Identity {
	id := r.identity
	id.Traits = r.Traits()
	id.HasPersistentMaps = r.HasPersistentMaps()
	return id
}

func (r *Robot) HasPersistentMaps() bool { return r.hasPersistentMaps.Load() }

// SetHasPersistentMaps may be called at any time, typically by the account
// layer after refreshing map listings. It only affects the default category
// chosen by the next StartCleaning.
func (r *Robot) SetHasPersistentMaps(v bool) { r.hasPersistentMaps.Store(v) }

func (r *Robot) String() string {
	return fmt.Sprintf("Name: %s, Serial: %s, Traits: %v", r.identity.Name, r.identity.Serial, r.identity.Traits)
}

// message signs and posts cmd, then validates the reply against schema.
// Shape mismatches are logged; only transport problems are errors.
func (r *Robot) message(ctx context.Context, cmd Command, schema Schema) (*Response, error) {
	body, err := cmd.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", cmd.Cmd, err)
	}

	header := r.signer.Headers(r.identity.Serial, r.identity.Secret, body)
	header.Set("Accept", r.vendor.NucleoVersion)

	start := time.Now()
	raw, err := r.transport.Post(ctx, r.url, header, body)
	metrics.CommandDuration.WithLabelValues(cmd.Cmd).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(cmd.Cmd, "error").Inc()
		return nil, &CommunicationError{Serial: r.identity.Serial, Command: cmd.Cmd, Err: err}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		metrics.CommandsTotal.WithLabelValues(cmd.Cmd, "error").Inc()
		return nil, &CommunicationError{Serial: r.identity.Serial, Command: cmd.Cmd, Err: fmt.Errorf("invalid JSON reply: %w", err)}
	}

	resp := &Response{StatusCode: raw.StatusCode, Body: raw.Body, Payload: payload}
	resp.Validation = Validate(payload, schema)
	if !resp.Validation.Valid {
		r.log.WithField("cmd", cmd.Cmd).Warnf("Invalid response from %s: %s. Got: %s", r.url, resp.Validation, string(raw.Body))
	}

	result := resp.Result()
	if result == "" {
		result = "unknown"
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Cmd, result).Inc()
	return resp, nil
}

func (r *Robot) defaultCategory() Category {
	if r.serviceVersion.SupportsPersistentMaps() && r.HasPersistentMaps() {
		return CategoryPersistent
	}
	return CategoryNonPersistent
}

func needsFallback(category Category, result, alert string) bool {
	return (category == CategoryPersistent && floorplanAlerts[alert]) || result == ResultNotOnChargeBase
}

// StartCleaning starts a house-cleaning run. When the robot cannot use its
// persistent map (floor-plan alert) or reports not_on_charge_base, the
// command is resent once with a non-persistent map and that reply is returned.
func (r *Robot) StartCleaning(ctx context.Context, req CleaningRequest) (*Response, error) {
	if req.Category == 0 {
		req.Category = r.defaultCategory()
	}

	cmd := StartCleaningCommand(r.serviceVersion, req)
	resp, err := r.message(ctx, cmd, SchemaState)
	if err != nil {
		return nil, err
	}

	result, alert := resp.Result(), resp.Alert()
	if result != ResultOK {
		r.log.Warnf("Result of robot.start_cleaning is not ok: %s, alert: %s", result, alert)
	}

	if !needsFallback(req.Category, result, alert) {
		return resp, nil
	}

	metrics.CleaningFallbacks.Inc()
	r.log.Infof("Retrying startCleaning on %s with a non-persistent map (result %s, alert %s)", r.identity.Serial, result, alert)

	fallback, err := r.message(ctx, cmd.withParam("category", int(CategoryNonPersistent)), SchemaState)
	if err != nil {
		return nil, err
	}
	fallback.FellBack = true

	if !fallback.OK() {
		r.log.Warnf("Result of robot.start_cleaning is not ok after fallback: %s, alert: %s", fallback.Result(), fallback.Alert())
	}
	return fallback, nil
}

// StartSpotCleaning uses the spotCleaning dialect seen at construction.
func (r *Robot) StartSpotCleaning(ctx context.Context, req SpotRequest) (*Response, error) {
	return r.message(ctx, StartSpotCleaningCommand(r.spotVersion, req), SchemaState)
}

func (r *Robot) PauseCleaning(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdPauseCleaning, nil), SchemaState)
}

func (r *Robot) ResumeCleaning(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdResumeCleaning, nil), SchemaState)
}

func (r *Robot) StopCleaning(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdStopCleaning, nil), SchemaState)
}

func (r *Robot) SendToBase(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdSendToBase, nil), SchemaState)
}

func (r *Robot) GetRobotState(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdGetRobotState, nil), SchemaState)
}

func (r *Robot) EnableSchedule(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdEnableSchedule, nil), SchemaStandard)
}

func (r *Robot) DisableSchedule(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdDisableSchedule, nil), SchemaStandard)
}

func (r *Robot) GetSchedule(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdGetSchedule, nil), SchemaStandard)
}

// Locate makes the robot play a sound.
func (r *Robot) Locate(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdFindMe, nil), SchemaStandard)
}

func (r *Robot) GetGeneralInfo(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdGetGeneralInfo, nil), SchemaStandard)
}

func (r *Robot) GetLocalStats(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdGetLocalStats, nil), SchemaStandard)
}

func (r *Robot) GetPreferences(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdGetPreferences, nil), SchemaStandard)
}

func (r *Robot) GetMapBoundaries(ctx context.Context, mapID string) (*Response, error) {
	return r.message(ctx, MapBoundariesCommand(mapID), SchemaStandard)
}

func (r *Robot) GetRobotInfo(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdGetRobotInfo, nil), SchemaStandard)
}

func (r *Robot) DismissCurrentAlert(ctx context.Context) (*Response, error) {
	return r.message(ctx, NewCommand(CmdDismissCurrentAlert, nil), SchemaStandard)
}

// State always queries the robot; nothing is cached.
func (r *Robot) State(ctx context.Context) (*RobotState, error) {
	resp, err := r.GetRobotState(ctx)
	if err != nil {
		return nil, err
	}
	return resp.State()
}

// AvailableServices is a live read of the service map.
func (r *Robot) AvailableServices(ctx context.Context) (map[string]string, error) {
	resp, err := r.GetRobotState(ctx)
	if err != nil {
		return nil, err
	}
	return availableServices(resp.Payload), nil
}

// ScheduleEnabled always issues a fresh getRobotState, since the schedule can
// be toggled from other clients.
func (r *Robot) ScheduleEnabled(ctx context.Context) (bool, error) {
	resp, err := r.GetRobotState(ctx)
	if err != nil {
		return false, err
	}
	details, ok := resp.Payload["details"].(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("robot %s state has no details", r.identity.Serial)
	}
	enabled, ok := details["isScheduleEnabled"].(bool)
	if !ok {
		return false, fmt.Errorf("robot %s state has no details.isScheduleEnabled", r.identity.Serial)
	}
	return enabled, nil
}

func (r *Robot) SetScheduleEnabled(ctx context.Context, enable bool) error {
	var err error
	if enable {
		_, err = r.EnableSchedule(ctx)
	} else {
		_, err = r.DisableSchedule(ctx)
	}
	return err
}
