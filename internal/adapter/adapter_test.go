package adapter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niksmo/twin-supply/internal/adapter"
)

func TestMakeTLSConfig(t *testing.T) {
	t.Run("MissingCA", func(t *testing.T) {
		_, err := adapter.MakeTLSConfig(filepath.Join(t.TempDir(), "ca.pem"), "", "")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("NotPEM", func(t *testing.T) {
		ca := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(ca, []byte("hello"), 0o600))

		_, err := adapter.MakeTLSConfig(ca, "", "")
		assert.ErrorIs(t, err, adapter.ErrBadCA)
	})
}
