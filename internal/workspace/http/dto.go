package workspacehttp

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

type createRequest struct {
	VoucherType   string          `json:"voucher_type" validate:"required"`
	EntryMode     string          `json:"entry_mode" validate:"omitempty,oneof=item_invoice voucher_mode accounting_mode"`
	Jurisdiction  string          `json:"jurisdiction"`
	CompanyRegion string          `json:"company_region"`
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Options       voucher.Options `json:"options"`
}

func (r createRequest) input() (voucher.NewDraftInput, error) {
	vt, err := voucher.ParseType(r.VoucherType)
	if err != nil {
		return voucher.NewDraftInput{}, err
	}
	in := voucher.NewDraftInput{
		Type:          vt,
		Mode:          voucher.EntryMode(r.EntryMode),
		Jurisdiction:  r.Jurisdiction,
		CompanyRegion: r.CompanyRegion,
		Options:       r.Options,
	}
	if r.Date != "" {
		in.Date, _ = time.Parse(time.DateOnly, r.Date)
	}
	return in, nil
}

type actionsRequest struct {
	ExpectedVersion *int64      `json:"expected_version"`
	Actions         []actionDTO `json:"actions" validate:"required,min=1,dive"`
}

type ledgerDTO struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

func (l *ledgerDTO) ref() *voucher.LedgerRef {
	if l == nil {
		return nil
	}
	return &voucher.LedgerRef{ID: l.ID, Name: l.Name}
}

type partyDTO struct {
	Ledger        ledgerDTO `json:"ledger"`
	GSTIN         string    `json:"gstin"`
	PlaceOfSupply string    `json:"place_of_supply"`
}

// actionDTO is the wire form of every draft action, discriminated by Type.
type actionDTO struct {
	Type  string `json:"type" validate:"required,oneof=set_header set_type set_mode set_party clear_party set_jurisdiction set_value_ledger set_options reset_lines add_stock_line update_stock_line remove_stock_line add_manual_entry update_manual_entry remove_manual_entry add_additional_ledger update_additional_ledger remove_additional_ledger"`
	Index *int   `json:"index" validate:"omitempty,min=0"`

	Number    *string `json:"number"`
	Reference *string `json:"reference"`
	Narration *string `json:"narration"`
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`

	VoucherType   string           `json:"voucher_type"`
	EntryMode     string           `json:"entry_mode"`
	Party         *partyDTO        `json:"party"`
	Jurisdiction  string           `json:"jurisdiction"`
	CompanyRegion *string          `json:"company_region"`
	Ledger        *ledgerDTO       `json:"ledger"`
	Options       *voucher.Options `json:"options"`

	Item      *voucher.ItemRef `json:"item"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Rate      *decimal.Decimal `json:"rate"`
	TaxRate   *decimal.Decimal `json:"tax_rate"`
	GodownID  *int64           `json:"godown_id"`
	Batch     *string          `json:"batch"`
	Serial    *string          `json:"serial"`
	Debit     *decimal.Decimal `json:"debit"`
	Credit    *decimal.Decimal `json:"credit"`
	Amount    *decimal.Decimal `json:"amount"`
	Direction *string          `json:"direction" validate:"omitempty,oneof=debit credit"`
}

func (a actionDTO) index() (int, error) {
	if a.Index == nil {
		return 0, fmt.Errorf("%s: index required", a.Type)
	}
	return *a.Index, nil
}

func zeroIfNil(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func side(s *string) *voucher.Side {
	if s == nil {
		return nil
	}
	v := voucher.Side(*s)
	return &v
}

func (a actionDTO) action() (voucher.Action, error) {
	switch a.Type {
	case "set_header":
		h := voucher.SetHeader{Number: a.Number, Reference: a.Reference, Narration: a.Narration}
		if a.Date != nil {
			t, err := time.Parse(time.DateOnly, *a.Date)
			if err != nil {
				return nil, err
			}
			h.Date = &t
		}
		return h, nil
	case "set_type":
		vt, err := voucher.ParseType(a.VoucherType)
		if err != nil {
			return nil, err
		}
		return voucher.SetType{Type: vt}, nil
	case "set_mode":
		return voucher.SetMode{Mode: voucher.EntryMode(a.EntryMode)}, nil
	case "set_party":
		if a.Party == nil {
			return nil, fmt.Errorf("set_party: party required")
		}
		return voucher.SetParty{Party: &voucher.Party{
			Ledger:        *a.Party.Ledger.ref(),
			GSTIN:         a.Party.GSTIN,
			PlaceOfSupply: a.Party.PlaceOfSupply,
		}}, nil
	case "clear_party":
		return voucher.SetParty{}, nil
	case "set_jurisdiction":
		return voucher.SetJurisdiction{Code: a.Jurisdiction, CompanyRegion: a.CompanyRegion}, nil
	case "set_value_ledger":
		if a.Ledger == nil {
			return nil, fmt.Errorf("set_value_ledger: ledger required")
		}
		return voucher.SetValueLedger{Ledger: *a.Ledger.ref()}, nil
	case "set_options":
		if a.Options == nil {
			return nil, fmt.Errorf("set_options: options required")
		}
		return voucher.SetOptions{Options: *a.Options}, nil
	case "reset_lines":
		return voucher.ResetLines{}, nil
	case "add_stock_line":
		line := voucher.StockLine{
			Quantity: zeroIfNil(a.Quantity),
			Rate:     zeroIfNil(a.Rate),
			TaxRate:  zeroIfNil(a.TaxRate),
			GodownID: a.GodownID,
		}
		if a.Item != nil {
			line.Item = *a.Item
		}
		if a.Batch != nil {
			line.Batch = *a.Batch
		}
		if a.Serial != nil {
			line.Serial = *a.Serial
		}
		return voucher.AddStockLine{Line: line}, nil
	case "update_stock_line":
		i, err := a.index()
		if err != nil {
			return nil, err
		}
		return voucher.UpdateStockLine{Index: i, Patch: voucher.StockPatch{
			Item: a.Item, Quantity: a.Quantity, Rate: a.Rate, TaxRate: a.TaxRate,
			GodownID: a.GodownID, Batch: a.Batch, Serial: a.Serial,
		}}, nil
	case "remove_stock_line":
		i, err := a.index()
		if err != nil {
			return nil, err
		}
		return voucher.RemoveStockLine{Index: i}, nil
	case "add_manual_entry":
		entry := voucher.ManualEntry{Debit: zeroIfNil(a.Debit), Credit: zeroIfNil(a.Credit)}
		if ref := a.Ledger.ref(); ref != nil {
			entry.Ledger = *ref
		}
		if a.Narration != nil {
			entry.Narration = *a.Narration
		}
		return voucher.AddManualEntry{Entry: entry}, nil
	case "update_manual_entry":
		i, err := a.index()
		if err != nil {
			return nil, err
		}
		return voucher.UpdateManualEntry{Index: i, Patch: voucher.ManualPatch{
			Ledger: a.Ledger.ref(), Debit: a.Debit, Credit: a.Credit, Narration: a.Narration,
		}}, nil
	case "remove_manual_entry":
		i, err := a.index()
		if err != nil {
			return nil, err
		}
		return voucher.RemoveManualEntry{Index: i}, nil
	case "add_additional_ledger":
		line := voucher.AdditionalLedger{Amount: zeroIfNil(a.Amount)}
		if ref := a.Ledger.ref(); ref != nil {
			line.Ledger = *ref
		}
		if s := side(a.Direction); s != nil {
			line.Direction = *s
		}
		return voucher.AddAdditionalLedger{Line: line}, nil
	case "update_additional_ledger":
		i, err := a.index()
		if err != nil {
			return nil, err
		}
		return voucher.UpdateAdditionalLedger{Index: i, Patch: voucher.AdditionalPatch{
			Ledger: a.Ledger.ref(), Amount: a.Amount, Direction: side(a.Direction),
		}}, nil
	case "remove_additional_ledger":
		i, err := a.index()
		if err != nil {
			return nil, err
		}
		return voucher.RemoveAdditionalLedger{Index: i}, nil
	}
	return nil, fmt.Errorf("unknown action %q", a.Type)
}

type commandRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type postRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=200"`
	PostedBy       string `json:"posted_by" validate:"omitempty,max=120"`
}

type splitLine struct {
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
}

type splitRequest struct {
	Jurisdiction  string      `json:"jurisdiction"`
	CompanyRegion string      `json:"company_region"`
	PlaceOfSupply string      `json:"place_of_supply"`
	Lines         []splitLine `json:"lines" validate:"required,min=1"`
}

type voucherTypeView struct {
	Type      voucher.VoucherType `json:"type"`
	PartyRole bool                `json:"party_role"`
	Stock     bool                `json:"stock"`
	Tax       bool                `json:"tax"`
	Modes     []voucher.EntryMode `json:"modes"`
}
