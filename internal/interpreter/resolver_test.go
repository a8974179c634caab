package interpreter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
)

func sampleLedgers() []ledgers.Ledger {
	return []ledgers.Ledger{
		{ID: 1, Name: "Cash"},
		{ID: 2, Name: "HDFC Bank A/c"},
		{ID: 3, Name: "ICICI Bank A/c"},
		{ID: 4, Name: "Sales"},
		{ID: 5, Name: "Sales Returns"},
		{ID: 6, Name: "Rent"},
		{ID: 7, Name: "Acme Supplies"},
	}
}

func TestResolverExactMatchIgnoresCase(t *testing.T) {
	r := NewResolver(sampleLedgers())
	ref := r.Resolve("  CASH ")
	require.NotNil(t, ref.ID)
	assert.Equal(t, int64(1), *ref.ID)
	assert.Equal(t, "Cash", ref.Name)

	ref = r.Resolve("sales")
	require.NotNil(t, ref.ID)
	assert.Equal(t, int64(4), *ref.ID)
}

func TestResolverUniqueSubstring(t *testing.T) {
	r := NewResolver(sampleLedgers())
	ref := r.Resolve("hdfc")
	require.NotNil(t, ref.ID)
	assert.Equal(t, int64(2), *ref.ID)

	ref = r.Resolve("acme")
	require.NotNil(t, ref.ID)
	assert.Equal(t, int64(7), *ref.ID)
}

func TestResolverIgnoresLedgerNamesInsideLongerText(t *testing.T) {
	r := NewResolver([]ledgers.Ledger{{ID: 1, Name: "Bank"}, {ID: 2, Name: "Cash"}})
	ref := r.Resolve("Bank Charges")
	assert.Nil(t, ref.ID)
	assert.Equal(t, "Bank Charges", ref.Name)

	assert.Nil(t, r.Resolve("Acme Supplies Pvt Ltd").ID)

	ref = r.Resolve("ban")
	require.NotNil(t, ref.ID)
	assert.Equal(t, int64(1), *ref.ID)
}

func TestResolverLeavesAmbiguousAndUnknownUnresolved(t *testing.T) {
	r := NewResolver(sampleLedgers())
	ref := r.Resolve("Bank")
	assert.Nil(t, ref.ID)
	assert.Equal(t, "Bank", ref.Name)

	assert.Nil(t, r.Resolve("Electricity").ID)
	assert.Nil(t, r.Resolve("").ID)
}

func TestBuildContextCapsAndRanks(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var list []ledgers.Ledger
	for i := 0; i < 25; i++ {
		used := base.Add(time.Duration(i) * time.Hour)
		list = append(list, ledgers.Ledger{ID: int64(i + 10), Name: fmt.Sprintf("Ledger %02d", i), LastUsedAt: &used})
	}
	list = append(list, ledgers.Ledger{ID: 99, Name: "Office Rent"})

	b := BuildContext("paid office rent for March", list, 10)
	require.Len(t, b.LedgerNames, 10)
	assert.Equal(t, "Office Rent", b.LedgerNames[0])
	assert.Equal(t, "Ledger 24", b.LedgerNames[1])
	assert.Len(t, b.VoucherTypes, 10)

	b = BuildContext("pay the vendor", list, 3)
	assert.Len(t, b.LedgerNames, 3)
	require.Len(t, b.VoucherTypes, 3)
	assert.Equal(t, "payment", b.VoucherTypes[0])
}
