package interpreter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// Kind tags a parsed response.
type Kind string

const (
	KindApplied Kind = "applied"
	KindClarify Kind = "clarify"
	KindFailed  Kind = "failed"
)

// Result is the tagged union produced by Parse. Exactly one of Patch or
// Clarification is set for the applied and clarify kinds.
type Result struct {
	Kind          Kind
	Patch         *Patch
	Clarification *Clarification
	Reason        string
}

// Patch is a validated structured voucher description.
type Patch struct {
	VoucherType voucher.VoucherType `json:"voucher_type"`
	Party       string              `json:"party,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	Narration   string              `json:"narration"`
	Entries     []PatchEntry        `json:"entries"`
}

// PatchEntry is one line of a patch.
type PatchEntry struct {
	Ledger    string           `json:"ledger"`
	Amount    decimal.Decimal  `json:"amount"`
	Side      voucher.Side     `json:"side"`
	StockItem string           `json:"stock_item,omitempty"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	Rate      *decimal.Decimal `json:"rate,omitempty"`
}

// Clarification carries follow-up questions for an ambiguous command.
type Clarification struct {
	Questions            []string            `json:"questions"`
	SuggestedVoucherType voucher.VoucherType `json:"suggested_voucher_type,omitempty"`
}

type wireResponse struct {
	NeedsClarification   *bool            `json:"needsClarification"`
	Questions            []string         `json:"questions"`
	SuggestedVoucherType *string          `json:"suggestedVoucherType"`
	VoucherType          *string          `json:"voucherType"`
	Party                *string          `json:"party"`
	Amount               *decimal.Decimal `json:"amount"`
	Narration            *string          `json:"narration"`
	Entries              []wireEntry      `json:"entries"`
}

type wirePatch struct {
	VoucherType *string          `validate:"required"`
	Amount      *decimal.Decimal `validate:"required"`
	Narration   *string          `validate:"required"`
	Entries     []wireEntry      `validate:"required,dive"`
}

type wireEntry struct {
	Ledger    *string          `json:"ledger" validate:"required,min=1"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	Type      *string          `json:"type" validate:"required,oneof=debit credit"`
	StockItem *string          `json:"stockItem"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Rate      *decimal.Decimal `json:"rate"`
}

type wireClarification struct {
	Questions []string `validate:"required,min=1,dive,required"`
}

var validate = validator.New()

// Parse classifies raw model output. Anything that is not exactly one of
// the two documented shapes is KindFailed; nothing is coerced.
func Parse(raw string) Result {
	body := stripFences(raw)
	if body == "" {
		return failed("empty response")
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var wire wireResponse
	if err := dec.Decode(&wire); err != nil {
		return failed(fmt.Sprintf("decode: %v", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return failed("trailing data after response")
	}
	if wire.NeedsClarification != nil {
		return parseClarification(wire)
	}
	return parsePatch(wire)
}

func parseClarification(wire wireResponse) Result {
	if !*wire.NeedsClarification {
		return failed("needsClarification must be true")
	}
	if wire.VoucherType != nil || wire.Amount != nil || wire.Entries != nil || wire.Party != nil || wire.Narration != nil {
		return failed("clarification mixed with patch fields")
	}
	if err := validate.Struct(wireClarification{Questions: wire.Questions}); err != nil {
		return failed(fmt.Sprintf("clarification: %v", err))
	}
	out := &Clarification{}
	for _, q := range wire.Questions {
		if q = strings.TrimSpace(q); q != "" {
			out.Questions = append(out.Questions, q)
		}
	}
	if len(out.Questions) == 0 {
		return failed("clarification without questions")
	}
	if wire.SuggestedVoucherType != nil && strings.TrimSpace(*wire.SuggestedVoucherType) != "" {
		vt, err := voucher.ParseType(*wire.SuggestedVoucherType)
		if err != nil {
			return failed(err.Error())
		}
		out.SuggestedVoucherType = vt
	}
	return Result{Kind: KindClarify, Clarification: out}
}

func parsePatch(wire wireResponse) Result {
	if wire.Questions != nil || wire.SuggestedVoucherType != nil {
		return failed("patch mixed with clarification fields")
	}
	shape := wirePatch{VoucherType: wire.VoucherType, Amount: wire.Amount, Narration: wire.Narration, Entries: wire.Entries}
	if err := validate.Struct(shape); err != nil {
		return failed(fmt.Sprintf("patch: %v", err))
	}
	vt, err := voucher.ParseType(*wire.VoucherType)
	if err != nil {
		return failed(err.Error())
	}
	patch := &Patch{
		VoucherType: vt,
		Amount:      *wire.Amount,
		Narration:   strings.TrimSpace(*wire.Narration),
		Entries:     make([]PatchEntry, 0, len(wire.Entries)),
	}
	if wire.Party != nil {
		patch.Party = strings.TrimSpace(*wire.Party)
	}
	for _, e := range wire.Entries {
		entry := PatchEntry{
			Ledger:   strings.TrimSpace(*e.Ledger),
			Amount:   *e.Amount,
			Side:     voucher.Side(*e.Type),
			Quantity: e.Quantity,
			Rate:     e.Rate,
		}
		if e.StockItem != nil {
			entry.StockItem = strings.TrimSpace(*e.StockItem)
		}
		patch.Entries = append(patch.Entries, entry)
	}
	return Result{Kind: KindApplied, Patch: patch}
}

func failed(reason string) Result {
	return Result{Kind: KindFailed, Reason: reason}
}

// stripFences removes a surrounding markdown code fence that chat models
// sometimes add despite the JSON response format.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
