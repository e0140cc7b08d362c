package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONValueScan(t *testing.T) {
	t.Run("Test nil", func(t *testing.T) {
		v, err := JSON(nil).Value()
		require.NoError(t, err)
		assert.Nil(t, v)

		var j JSON
		require.NoError(t, j.Scan(nil))
		assert.Nil(t, j)
	})

	t.Run("Test bytes and string", func(t *testing.T) {
		v, err := JSON{"category": 4}.Value()
		require.NoError(t, err)
		assert.Equal(t, `{"category":4}`, v)

		var fromString, fromBytes JSON
		require.NoError(t, fromString.Scan(`{"mapId":"m-1"}`))
		require.NoError(t, fromBytes.Scan([]byte(`{"mapId":"m-1"}`)))
		assert.Equal(t, JSON{"mapId": "m-1"}, fromString)
		assert.Equal(t, fromString, fromBytes)
	})

	t.Run("Test unsupported type", func(t *testing.T) {
		var j JSON
		assert.Error(t, j.Scan(42))
	})
}
