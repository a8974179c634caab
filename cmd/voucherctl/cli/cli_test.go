package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSplitCommandIntraState(t *testing.T) {
	out, err := execute(t, "split", "--company-region", "mh", "--place-of-supply", "MH", "--line", "500@18")
	require.NoError(t, err)

	var result struct {
		Jurisdiction string `json:"jurisdiction"`
		Entries      []struct {
			Kind   string `json:"kind"`
			Amount string `json:"amount"`
		} `json:"entries"`
		Total string `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "IN", result.Jurisdiction)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "CGST", result.Entries[0].Kind)
	assert.Equal(t, "45", result.Entries[0].Amount)
	assert.Equal(t, "90", result.Total)
}

func TestSplitCommandRejectsBadLine(t *testing.T) {
	_, err := execute(t, "split", "--line", "500")
	assert.ErrorContains(t, err, "AMOUNT@RATE")

	_, err = execute(t, "split", "--jurisdiction", "ZZ", "--line", "1@1")
	assert.Error(t, err)
}

func TestDeriveCommandBuildsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "voucher_type": "sales",
  "entry_mode": "item_invoice",
  "jurisdiction": "IN",
  "company_region": "MH",
  "party": {"ledger": {"id": 7, "name": "Acme"}, "place_of_supply": "MH"},
  "value_ledger": {"id": 8, "name": "Sales"},
  "stock_entries": [{"quantity": "5", "rate": "100", "tax_rate": "18"}]
}`), 0o600))

	out, err := execute(t, "derive", "--journal", path)
	require.NoError(t, err)

	var result struct {
		Fingerprint string `json:"fingerprint"`
		Totals      struct {
			TotalDebit string `json:"total_debit"`
			IsBalanced bool   `json:"is_balanced"`
		} `json:"totals"`
		Journal []json.RawMessage `json:"journal"`
		Problem string            `json:"problem"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result.Fingerprint, 64)
	assert.Equal(t, "590", result.Totals.TotalDebit)
	assert.True(t, result.Totals.IsBalanced)
	assert.Empty(t, result.Problem)
	assert.Len(t, result.Journal, 4)
}

func TestDeriveCommandMissingFile(t *testing.T) {
	_, err := execute(t, "derive", filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
