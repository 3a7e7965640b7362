package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		p, err := Parse("alphaLeft=2.0,expLeft=1,bucketSize=50")
		require.NoError(t, err)
		assert.Equal(t, "2.0", p["alphaLeft"])
		assert.Equal(t, "1", p["expLeft"])
		assert.Equal(t, "alphaLeft=2.0,bucketSize=50,expLeft=1", p.String())
	})

	t.Run("Empty", func(t *testing.T) {
		p, err := Parse("")
		require.NoError(t, err)
		assert.Empty(t, p)
		assert.Equal(t, "", p.String())
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := Parse("alphaLeft")
		assert.Error(t, err)

		_, err = Parse("=1")
		assert.Error(t, err)
	})
}

func TestManager(t *testing.T) {
	t.Run("TypedGetters", func(t *testing.T) {
		m := NewManager(Params{"alphaLeft": "2.5", "expLeft": "3", "chunkBucket": "false"})

		f, err := m.Float("alphaLeft", 1.0)
		require.NoError(t, err)
		assert.Equal(t, 2.5, f)

		n, err := m.Int("expLeft", 1)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		b, err := m.Bool("chunkBucket", true)
		require.NoError(t, err)
		assert.False(t, b)

		assert.NoError(t, m.CheckUnclaimed())
	})

	t.Run("Defaults", func(t *testing.T) {
		m := NewManager(Params{})

		f, err := m.Float("alphaLeft", 1.0)
		require.NoError(t, err)
		assert.Equal(t, 1.0, f)
	})

	t.Run("ParseErrors", func(t *testing.T) {
		m := NewManager(Params{"expLeft": "one"})
		_, err := m.Int("expLeft", 1)
		assert.Error(t, err)
	})

	t.Run("Required", func(t *testing.T) {
		m := NewManager(Params{"projDim": "16"})

		n, err := m.RequireInt("projDim")
		require.NoError(t, err)
		assert.Equal(t, 16, n)

		_, err = m.RequireString("projType")
		assert.Error(t, err)
	})

	t.Run("Unclaimed", func(t *testing.T) {
		m := NewManager(Params{"alphaLeft": "1", "bogus": "x", "alsoBogus": "y"})
		_, err := m.Float("alphaLeft", 1)
		require.NoError(t, err)

		err = m.CheckUnclaimed()
		require.Error(t, err)

		var unclaimed *UnclaimedError
		require.ErrorAs(t, err, &unclaimed)
		assert.Equal(t, []string{"alsoBogus", "bogus"}, unclaimed.Keys)
	})

	t.Run("ExtractExcept", func(t *testing.T) {
		m := NewManager(Params{"projDim": "16", "alphaLeft": "2", "bucketSize": "10"})
		rest := m.ExtractExcept("projDim")
		assert.Equal(t, Params{"alphaLeft": "2", "bucketSize": "10"}, rest)

		_, err := m.RequireInt("projDim")
		require.NoError(t, err)
		assert.NoError(t, m.CheckUnclaimed())
	})
}
