package robot

import (
	"fmt"
	"strings"
)

// ServiceVersion is the payload dialect a robot advertises for a service.
type ServiceVersion string

const (
	Basic1   ServiceVersion = "basic-1"
	Basic2   ServiceVersion = "basic-2"
	Basic3   ServiceVersion = "basic-3"
	Basic4   ServiceVersion = "basic-4"
	Minimal2 ServiceVersion = "minimal-2"
	Micro2   ServiceVersion = "micro-2"
)

// Supported reports whether v is an accepted houseCleaning version.
func (v ServiceVersion) Supported() bool {
	_, ok := cleaningBuilders[v]
	return ok
}

// SupportsPersistentMaps reports whether v can clean on a saved floor plan.
func (v ServiceVersion) SupportsPersistentMaps() bool {
	return v == Basic3 || v == Basic4
}

type Category int

const (
	CategoryNonPersistent Category = 2
	CategorySpot          Category = 3
	CategoryPersistent    Category = 4
)

type CleaningMode int

const (
	ModeEco   CleaningMode = 1
	ModeTurbo CleaningMode = 2
)

type NavigationMode int

const (
	NavigationNormal    NavigationMode = 1
	NavigationExtraCare NavigationMode = 2
	NavigationDeep      NavigationMode = 3
)

// ParseCleaningMode accepts "eco" or "turbo". An empty name selects turbo.
func ParseCleaningMode(name string) (CleaningMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "turbo":
		return ModeTurbo, nil
	case "eco":
		return ModeEco, nil
	}
	return 0, fmt.Errorf("unknown cleaning mode %q", name)
}

// ParseNavigationMode accepts "normal", "extra care" (or "extra_care") and "deep".
func ParseNavigationMode(name string) (NavigationMode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", " ") {
	case "", "normal":
		return NavigationNormal, nil
	case "extra care":
		return NavigationExtraCare, nil
	case "deep":
		return NavigationDeep, nil
	}
	return 0, fmt.Errorf("unknown navigation mode %q", name)
}

// CleaningRequest describes a house-cleaning run. Zero values select the
// defaults: turbo, normal navigation, and a category derived from the robot.
type CleaningRequest struct {
	Mode           CleaningMode   `json:"mode,omitempty"`
	NavigationMode NavigationMode `json:"navigationMode,omitempty"`
	Category       Category       `json:"category,omitempty"`
	BoundaryID     string         `json:"boundaryId,omitempty"`
	MapID          string         `json:"mapId,omitempty"`
}

func (r CleaningRequest) withDefaults() CleaningRequest {
	if r.Mode == 0 {
		r.Mode = ModeTurbo
	}
	if r.NavigationMode == 0 {
		r.NavigationMode = NavigationNormal
	}
	return r
}

// SpotRequest describes a spot-cleaning run. Sizes are in centimetres.
type SpotRequest struct {
	Width    int          `json:"spotWidth,omitempty"`
	Height   int          `json:"spotHeight,omitempty"`
	Mode     CleaningMode `json:"mode,omitempty"`
	Modifier int          `json:"modifier,omitempty"`
}

func (r SpotRequest) withDefaults() SpotRequest {
	if r.Width == 0 {
		r.Width = 400
	}
	if r.Height == 0 {
		r.Height = 400
	}
	if r.Mode == 0 {
		r.Mode = ModeTurbo
	}
	if r.Modifier == 0 {
		r.Modifier = 2
	}
	return r
}

type paramsBuilder func(CleaningRequest) Params

// cleaningBuilders doubles as the set of supported houseCleaning versions.
var cleaningBuilders = map[ServiceVersion]paramsBuilder{
	Basic1:   basicOneParams,
	Basic2:   navigationParams,
	Basic3:   persistentMapParams,
	Basic4:   persistentMapParams,
	Minimal2: minimalParams,
}

func basicOneParams(r CleaningRequest) Params {
	return Params{
		"category": int(r.Category),
		"mode":     int(r.Mode),
		"modifier": 1,
	}
}

func navigationParams(r CleaningRequest) Params {
	return Params{
		"category":       int(r.Category),
		"mode":           int(r.Mode),
		"modifier":       1,
		"navigationMode": int(r.NavigationMode),
	}
}

func persistentMapParams(r CleaningRequest) Params {
	p := navigationParams(r)
	if r.BoundaryID != "" {
		p["boundaryId"] = r.BoundaryID
	}
	if r.MapID != "" {
		p["mapId"] = r.MapID
	}
	return p
}

func minimalParams(r CleaningRequest) Params {
	return Params{
		"category":       int(r.Category),
		"navigationMode": int(r.NavigationMode),
	}
}

// StartCleaningParams builds startCleaning params for version v. The request
// must already carry a category. Unknown versions get the basic-2 shape.
func StartCleaningParams(v ServiceVersion, r CleaningRequest) Params {
	build, ok := cleaningBuilders[v]
	if !ok {
		build = navigationParams
	}
	return build(r.withDefaults())
}

func StartCleaningCommand(v ServiceVersion, r CleaningRequest) Command {
	return NewCommand(CmdStartCleaning, StartCleaningParams(v, r))
}

type spotBuilder func(SpotRequest) Params

var spotBuilders = map[ServiceVersion]spotBuilder{
	Basic1: func(r SpotRequest) Params {
		return Params{
			"category":   int(CategorySpot),
			"mode":       int(r.Mode),
			"modifier":   r.Modifier,
			"spotWidth":  r.Width,
			"spotHeight": r.Height,
		}
	},
	Basic3: func(r SpotRequest) Params {
		return Params{
			"category":   int(CategorySpot),
			"spotWidth":  r.Width,
			"spotHeight": r.Height,
		}
	},
	Minimal2: func(r SpotRequest) Params {
		return Params{
			"category":       int(CategorySpot),
			"modifier":       r.Modifier,
			"navigationMode": int(NavigationNormal),
		}
	},
}

// micro-2 and anything unrecognised.
func microSpotParams(SpotRequest) Params {
	return Params{
		"category":       int(CategorySpot),
		"navigationMode": int(NavigationNormal),
	}
}

// StartSpotCleaningParams builds spot-cleaning params for spot version v.
func StartSpotCleaningParams(v ServiceVersion, r SpotRequest) Params {
	build, ok := spotBuilders[v]
	if !ok {
		build = microSpotParams
	}
	return build(r.withDefaults())
}

func StartSpotCleaningCommand(v ServiceVersion, r SpotRequest) Command {
	return NewCommand(CmdStartCleaning, StartSpotCleaningParams(v, r))
}

// MapBoundariesCommand always carries mapId; an empty id is sent as null.
func MapBoundariesCommand(mapID string) Command {
	var id interface{}
	if mapID != "" {
		id = mapID
	}
	return NewCommand(CmdGetMapBoundaries, Params{"mapId": id})
}
