package pkg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSpill(t *testing.T) {
	t.Run("NewFileSpill", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		require.NotNil(t, spill)
		require.Contains(t, spill.Path(), "optipy-spill")
		defer spill.Close()
	})

	t.Run("Append and Get", func(t *testing.T) {
		spill, err := NewFileSpill[string]()
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append("first"))
		require.NoError(t, spill.Append("second"))

		val, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, "first", val)

		val, err = spill.Get(1)
		require.NoError(t, err)
		require.Equal(t, "second", val)

		_, err = spill.Get(2)
		require.Error(t, err)
	})

	t.Run("Len", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		defer spill.Close()

		require.Equal(t, uint64(0), spill.Len())

		require.NoError(t, spill.Append(7))
		require.NoError(t, spill.Append(8))
		require.Equal(t, uint64(2), spill.Len())
	})

	t.Run("Range", func(t *testing.T) {
		type record struct {
			Name  string
			Count int
		}

		spill, err := NewFileSpill[record]()
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append(record{Name: "a", Count: 1}))
		require.NoError(t, spill.Append(record{Name: "b", Count: 2}))

		var collected []record

		err = spill.Range(func(_ uint64, item record) error {
			collected = append(collected, item)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []record{{Name: "a", Count: 1}, {Name: "b", Count: 2}}, collected)
	})

	t.Run("Close removes backing file", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)

		path := spill.Path()
		require.NoError(t, spill.Close())

		_, statErr := os.Stat(path)
		require.True(t, os.IsNotExist(statErr))

		// Closing twice is harmless.
		require.NoError(t, spill.Close())
	})
}
