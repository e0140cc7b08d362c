package robot

import (
	"encoding/json"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(p Params) []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestStartCleaningParams(t *testing.T) {
	req := CleaningRequest{Category: CategoryPersistent, BoundaryID: "b-1", MapID: "m-1"}

	tests := []struct {
		version ServiceVersion
		want    Params
	}{
		{Basic1, Params{"category": 4, "mode": 2, "modifier": 1}},
		{Basic2, Params{"category": 4, "mode": 2, "modifier": 1, "navigationMode": 1}},
		{Basic3, Params{"category": 4, "mode": 2, "modifier": 1, "navigationMode": 1, "boundaryId": "b-1", "mapId": "m-1"}},
		{Basic4, Params{"category": 4, "mode": 2, "modifier": 1, "navigationMode": 1, "boundaryId": "b-1", "mapId": "m-1"}},
		{Minimal2, Params{"category": 4, "navigationMode": 1}},
		{ServiceVersion("basic-99"), Params{"category": 4, "mode": 2, "modifier": 1, "navigationMode": 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.version), func(t *testing.T) {
			assert.Equal(t, tt.want, StartCleaningParams(tt.version, req))
		})
	}
}

func TestStartCleaningParamsOptionalMapFields(t *testing.T) {
	p := StartCleaningParams(Basic4, CleaningRequest{Category: CategoryNonPersistent})
	assert.Equal(t, []string{"category", "mode", "modifier", "navigationMode"}, keys(p))

	p = StartCleaningParams(Basic3, CleaningRequest{Category: CategoryPersistent, BoundaryID: "b-2"})
	assert.Equal(t, []string{"boundaryId", "category", "mode", "modifier", "navigationMode"}, keys(p))
}

func TestStartCleaningParamsHonoursRequest(t *testing.T) {
	p := StartCleaningParams(Basic2, CleaningRequest{
		Category:       CategoryNonPersistent,
		Mode:           ModeEco,
		NavigationMode: NavigationDeep,
	})
	assert.Equal(t, 1, p["mode"])
	assert.Equal(t, 3, p["navigationMode"])
	assert.Equal(t, 2, p["category"])
}

func TestStartSpotCleaningParams(t *testing.T) {
	tests := []struct {
		version ServiceVersion
		req     SpotRequest
		want    Params
	}{
		{Basic1, SpotRequest{}, Params{"category": 3, "mode": 2, "modifier": 2, "spotWidth": 400, "spotHeight": 400}},
		{Basic1, SpotRequest{Width: 150, Height: 200, Mode: ModeEco, Modifier: 1},
			Params{"category": 3, "mode": 1, "modifier": 1, "spotWidth": 150, "spotHeight": 200}},
		{Basic3, SpotRequest{Width: 250}, Params{"category": 3, "spotWidth": 250, "spotHeight": 400}},
		{Minimal2, SpotRequest{}, Params{"category": 3, "modifier": 2, "navigationMode": 1}},
		{Micro2, SpotRequest{Width: 100}, Params{"category": 3, "navigationMode": 1}},
		{ServiceVersion(""), SpotRequest{}, Params{"category": 3, "navigationMode": 1}},
	}

	for _, tt := range tests {
		name := string(tt.version)
		if name == "" {
			name = "none"
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, StartSpotCleaningParams(tt.version, tt.req))
		})
	}
}

func TestServiceVersionSupported(t *testing.T) {
	for _, v := range []ServiceVersion{Basic1, Basic2, Basic3, Basic4, Minimal2} {
		assert.True(t, v.Supported(), "%s", v)
	}
	for _, v := range []ServiceVersion{"", "basic-99", Micro2, "BASIC-1"} {
		assert.False(t, v.Supported(), "%q", v)
	}

	assert.True(t, Basic3.SupportsPersistentMaps())
	assert.True(t, Basic4.SupportsPersistentMaps())
	assert.False(t, Basic2.SupportsPersistentMaps())
	assert.False(t, Basic1.SupportsPersistentMaps())
}

func TestCommandEncoding(t *testing.T) {
	t.Run("no params omits the field", func(t *testing.T) {
		b, err := NewCommand(CmdPauseCleaning, nil).Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"reqId":"1","cmd":"pauseCleaning"}`, string(b))
	})

	t.Run("round trip", func(t *testing.T) {
		req := CleaningRequest{Category: CategoryPersistent, BoundaryID: "b-1", MapID: "m-1"}
		for _, v := range []ServiceVersion{Basic1, Basic2, Basic3, Basic4, Minimal2} {
			t.Run(string(v), func(t *testing.T) {
				cmd := StartCleaningCommand(v, req)
				b, err := cmd.Encode()
				require.NoError(t, err)

				decoded, err := DecodeCommand(b)
				require.NoError(t, err)
				assert.Equal(t, "1", decoded.ReqID)
				assert.Equal(t, CmdStartCleaning, decoded.Cmd)
				assert.Equal(t, keys(cmd.Params), keys(decoded.Params))
				for k, want := range cmd.Params {
					switch want := want.(type) {
					case int:
						assert.Equal(t, json.Number(strconv.Itoa(want)), decoded.Params[k], k)
					default:
						assert.Equal(t, want, decoded.Params[k], k)
					}
				}
			})
		}
	})

	t.Run("map boundaries sends null for an empty id", func(t *testing.T) {
		b, err := MapBoundariesCommand("").Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"reqId":"1","cmd":"getMapBoundaries","params":{"mapId":null}}`, string(b))

		b, err = MapBoundariesCommand("map-7").Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"reqId":"1","cmd":"getMapBoundaries","params":{"mapId":"map-7"}}`, string(b))
	})

	t.Run("withParam copies", func(t *testing.T) {
		cmd := StartCleaningCommand(Basic2, CleaningRequest{Category: CategoryPersistent})
		changed := cmd.withParam("category", 2)
		assert.Equal(t, 4, cmd.Params["category"])
		assert.Equal(t, 2, changed.Params["category"])
	})

	t.Run("decode rejects garbage", func(t *testing.T) {
		_, err := DecodeCommand([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestParseModes(t *testing.T) {
	modes := map[string]CleaningMode{"": ModeTurbo, "turbo": ModeTurbo, "Eco": ModeEco}
	for in, want := range modes {
		got, err := ParseCleaningMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCleaningMode("max")
	assert.Error(t, err)

	navs := map[string]NavigationMode{"": NavigationNormal, "normal": NavigationNormal, "extra care": NavigationExtraCare, "extra_care": NavigationExtraCare, "DEEP": NavigationDeep}
	for in, want := range navs {
		got, err := ParseNavigationMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = ParseNavigationMode("sideways")
	assert.Error(t, err)
}
