package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineDefaults(t *testing.T) {
	engine, err := NewEngine(nil)
	require.NoError(t, err)
	assert.Equal(t, "IN", engine.DefaultJurisdiction())

	_, err = NewEngine(&Config{DefaultJurisdiction: "ZZ"})
	assert.Error(t, err)
}

func TestNewEngineLoadsTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tax.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
jurisdictions:
  - code: AE
    currency: AED
    minor_unit_digits: 2
    intra_state:
      - name: VAT
        share: "1"
`), 0o600))

	engine, err := NewEngine(&Config{TaxTablePath: path, DefaultJurisdiction: "AE"})
	require.NoError(t, err)
	assert.Equal(t, "AE", engine.DefaultJurisdiction())

	_, err = NewEngine(&Config{TaxTablePath: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
}
