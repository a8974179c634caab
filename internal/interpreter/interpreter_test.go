package interpreter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []Request
}

func (m *scriptedModel) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	if idx < len(m.errs) && m.errs[idx] != nil {
		return "", m.errs[idx]
	}
	if idx >= len(m.responses) {
		return "", errors.New("no scripted response")
	}
	return m.responses[idx], nil
}

type blockingModel struct{}

func (blockingModel) Complete(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newInterpreter(model Model) (*Interpreter, *voucher.Engine) {
	engine := voucher.NewEngine(tax.DefaultTable(), "IN")
	return New(model, engine, Options{Timeout: time.Second}, nil), engine
}

func TestRunAppliesJournalPatch(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"journal","amount":1000,"narration":"March rent",
"entries":[{"ledger":"rent","amount":1000,"type":"debit"},{"ledger":"Cash","amount":1000,"type":"credit"}]}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("paid rent 1000 in cash", d.Version)
	require.NoError(t, err)
	next, conv, err := in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)

	assert.Equal(t, StateApplied, conv.State)
	assert.Equal(t, "March rent", next.Narration)
	require.Len(t, next.ManualEntries, 2)
	assert.Equal(t, int64(6), *next.ManualEntries[0].Ledger.ID)
	assert.Equal(t, "Rent", next.ManualEntries[0].Ledger.Name)
	assert.True(t, next.Totals.IsBalanced)
	assert.NoError(t, engine.CheckPostable(next))

	require.Len(t, model.requests, 1)
	assert.LessOrEqual(t, len(model.requests[0].Context.LedgerNames), DefaultContextLimit)
	assert.ElementsMatch(t, []string{"Cash", "Rent"}, model.requests[0].Context.LedgerNames[:2])
}

func TestRunMalformedResponseLeavesDraftUntouched(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"journal","amount":10,"narration":"x","entries":[],"extra":true}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)
	before, err := voucher.Fingerprint(d)
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("something", d.Version)
	require.NoError(t, err)
	next, conv, err := in.Run(context.Background(), d, conv, nil)

	var aiErr *AIInterpretationError
	require.True(t, errors.As(err, &aiErr))
	assert.True(t, aiErr.Retryable)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, StateFailed, conv.State)
	require.NotNil(t, conv.Failure)
	assert.True(t, conv.Failure.Retryable)

	after, err := voucher.Fingerprint(next)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, d.Version, next.Version)
}

func TestRunRejectedPatchLeavesDraftUntouched(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"journal","amount":10,"narration":"x",
"entries":[{"ledger":"Cash","amount":-10,"type":"debit"}]}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("negative", d.Version)
	require.NoError(t, err)
	next, conv, err := in.Run(context.Background(), d, conv, sampleLedgers())
	assert.ErrorIs(t, err, ErrPatchRejected)
	assert.ErrorIs(t, err, voucher.ErrNegativeAmount)
	assert.Equal(t, StateFailed, conv.State)
	assert.Equal(t, d.Version, next.Version)
	assert.Len(t, next.ManualEntries, 1)
}

func TestClarificationRoundTrip(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"needsClarification":true,"questions":["How much did you pay the vendor?"],"suggestedVoucherType":"payment"}`,
		`{"voucherType":"payment","party":"Acme Supplies","amount":500,"narration":"Vendor payment",
"entries":[{"ledger":"Acme Supplies","amount":500,"type":"debit"},{"ledger":"Cash","amount":500,"type":"credit"}]}`,
	}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("pay the vendor", d.Version)
	require.NoError(t, err)
	d, conv, err = in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)
	require.Equal(t, StateNeedsClarification, conv.State)
	assert.NotEmpty(t, conv.Questions)
	assert.Equal(t, voucher.TypePayment, conv.SuggestedType)
	assert.Equal(t, int64(0), d.Version)

	conv, err = conv.Answer("500 to Acme Supplies", d.Version)
	require.NoError(t, err)
	assert.Equal(t, StateSent, conv.State)

	d, conv, err = in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)
	assert.Equal(t, StateApplied, conv.State)
	require.NotNil(t, conv.Applied)
	assert.Equal(t, "500", conv.Applied.Amount.String())
	assert.Equal(t, voucher.TypePayment, d.Type)
	assert.Equal(t, "500", d.Totals.TotalDebit.String())
	assert.True(t, d.Totals.IsBalanced)
	require.NotNil(t, d.Party)
	assert.Equal(t, int64(7), *d.Party.Ledger.ID)

	require.Len(t, model.requests, 2)
	assert.Len(t, model.requests[1].History, 3)
	assert.Equal(t, RoleAssistant, model.requests[1].History[1].Role)
}

func TestPaymentWithoutEntriesLeavesCashSideOpen(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"payment","party":"Acme Supplies","amount":500,"narration":"Vendor payment","entries":[]}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypePayment})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("pay acme 500", d.Version)
	require.NoError(t, err)
	d, _, err = in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)
	assert.True(t, d.Totals.IsBalanced)

	var unresolved *voucher.UnresolvedLedgerError
	require.True(t, errors.As(engine.CheckPostable(d), &unresolved))
	assert.Len(t, unresolved.Lines, 1)
}

func TestRunSaleKeepsKnownTaxRate(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"sales","party":"Acme Supplies","amount":590,"narration":"Widgets",
"entries":[{"ledger":"Acme Supplies","amount":590,"type":"debit"},
{"ledger":"Sales","amount":500,"type":"credit","stockItem":"Widget","quantity":5},
{"ledger":"CGST","amount":45,"type":"credit"},{"ledger":"SGST","amount":45,"type":"credit"}]}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeSales, CompanyRegion: "MH"})
	require.NoError(t, err)
	eighteen := decimal.NewFromInt(18)
	d, err = engine.Apply(d, voucher.UpdateStockLine{Index: 0, Patch: voucher.StockPatch{Item: &voucher.ItemRef{Name: "widget"}, TaxRate: &eighteen}})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("sold 5 widgets to acme for 500 plus gst", d.Version)
	require.NoError(t, err)
	d, conv, err = in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)
	require.Equal(t, StateApplied, conv.State)

	require.Len(t, d.StockEntries, 1)
	assert.Equal(t, "100", d.StockEntries[0].Rate.String())
	assert.Equal(t, "500", d.StockEntries[0].Amount.String())
	require.Len(t, d.TaxEntries, 2)
	assert.Equal(t, "45", d.TaxEntries[0].Amount.String())
	assert.Empty(t, d.AdditionalLedgers)
	assert.Equal(t, "590", d.Totals.PartyAmount.String())
	assert.Equal(t, int64(4), *d.ValueLedger.ID)
}

func TestRunSaleUsesJurisdictionDefaultRate(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"sales","party":"Acme Supplies","amount":500,"narration":"Widgets",
"entries":[{"ledger":"Sales","amount":500,"type":"credit","stockItem":"Widget","quantity":5,"rate":100}]}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeSales, CompanyRegion: "MH"})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("sold 5 widgets at 100 to acme", d.Version)
	require.NoError(t, err)
	d, conv, err = in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)
	require.Equal(t, StateApplied, conv.State)

	require.Len(t, d.StockEntries, 1)
	assert.Equal(t, "18", d.StockEntries[0].TaxRate.String())
	require.Len(t, d.TaxEntries, 2)
	assert.Equal(t, "CGST", d.TaxEntries[0].Kind)
	assert.Equal(t, "45", d.TaxEntries[0].Amount.String())
	assert.Equal(t, "SGST", d.TaxEntries[1].Kind)
	assert.Equal(t, "45", d.TaxEntries[1].Amount.String())
	assert.Equal(t, "590", d.Totals.PartyAmount.String())
	assert.True(t, d.Totals.IsBalanced)
}

func TestRunSaleInfersRateFromTaxEntries(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"voucherType":"sales","party":"Acme Supplies","amount":560,"narration":"Widgets",
"entries":[{"ledger":"Acme Supplies","amount":560,"type":"debit"},
{"ledger":"Sales","amount":500,"type":"credit","stockItem":"Widget","quantity":5},
{"ledger":"CGST","amount":30,"type":"credit"},{"ledger":"SGST","amount":30,"type":"credit"}]}`}}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeSales, CompanyRegion: "MH"})
	require.NoError(t, err)

	conv, err := Conversation{}.Begin("sold 5 widgets for 500 plus 12% gst", d.Version)
	require.NoError(t, err)
	d, _, err = in.Run(context.Background(), d, conv, sampleLedgers())
	require.NoError(t, err)

	require.Len(t, d.StockEntries, 1)
	assert.Equal(t, "12", d.StockEntries[0].TaxRate.String())
	assert.Equal(t, "560", d.Totals.PartyAmount.String())
}

func TestRunDiscardsStaleConversation(t *testing.T) {
	model := &scriptedModel{}
	in, engine := newInterpreter(model)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)
	conv, err := Conversation{}.Begin("x", d.Version)
	require.NoError(t, err)
	d, err = engine.Apply(d, voucher.SetHeader{})
	require.NoError(t, err)

	_, conv, err = in.Run(context.Background(), d, conv, nil)
	assert.ErrorIs(t, err, ErrStaleResponse)
	assert.Equal(t, StateFailed, conv.State)
	assert.Empty(t, model.requests)
}

func TestRunTimeoutIsRetryable(t *testing.T) {
	engine := voucher.NewEngine(tax.DefaultTable(), "IN")
	in := New(blockingModel{}, engine, Options{Timeout: 10 * time.Millisecond}, nil)
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)
	conv, err := Conversation{}.Begin("x", d.Version)
	require.NoError(t, err)

	_, conv, err = in.Run(context.Background(), d, conv, nil)
	var aiErr *AIInterpretationError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, "timeout", aiErr.Reason)
	assert.True(t, conv.Failure.Retryable)
}

func TestRunRequiresSentConversation(t *testing.T) {
	in, engine := newInterpreter(&scriptedModel{})
	d, err := engine.New(voucher.NewDraftInput{Type: voucher.TypeJournal})
	require.NoError(t, err)
	_, _, err = in.Run(context.Background(), d, Conversation{}, nil)
	assert.ErrorIs(t, err, ErrNotSent)
}
