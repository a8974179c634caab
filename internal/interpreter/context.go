package interpreter

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// DefaultContextLimit caps each vocabulary list sent with a command.
const DefaultContextLimit = 10

// Bundle is the vocabulary sent alongside a command.
type Bundle struct {
	LedgerNames  []string `json:"ledgerNames"`
	VoucherTypes []string `json:"voucherTypes"`
}

type scoredLedger struct {
	name     string
	score    int
	lastUsed time.Time
}

// BuildContext picks at most limit ledger names ranked by token overlap with
// text, then by most recent use, then by name. Voucher types are ranked the
// same way against the same limit.
func BuildContext(text string, list []ledgers.Ledger, limit int) Bundle {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	tokens := tokenize(text)

	scored := make([]scoredLedger, 0, len(list))
	for _, l := range list {
		s := scoredLedger{name: l.Name, score: overlap(tokens, fold(l.Name))}
		if l.LastUsedAt != nil {
			s.lastUsed = *l.LastUsedAt
		}
		scored = append(scored, s)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if !scored[i].lastUsed.Equal(scored[j].lastUsed) {
			return scored[i].lastUsed.After(scored[j].lastUsed)
		}
		return scored[i].name < scored[j].name
	})
	bundle := Bundle{LedgerNames: make([]string, 0, min(limit, len(scored)))}
	for i := 0; i < len(scored) && i < limit; i++ {
		bundle.LedgerNames = append(bundle.LedgerNames, scored[i].name)
	}

	types := voucher.AllTypes()
	typeScores := make(map[voucher.VoucherType]int, len(types))
	for _, t := range types {
		typeScores[t] = overlap(tokens, strings.ReplaceAll(string(t), "_", " "))
	}
	sort.SliceStable(types, func(i, j int) bool {
		return typeScores[types[i]] > typeScores[types[j]]
	})
	for i := 0; i < len(types) && i < limit; i++ {
		bundle.VoucherTypes = append(bundle.VoucherTypes, string(types[i]))
	}
	return bundle
}

func tokenize(text string) []string {
	words := strings.FieldsFunc(fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// overlap counts tokens that share a prefix of at least three runes with a
// word of name, so "pay" matches "payment" and "purchased" matches "purchase".
func overlap(tokens []string, name string) int {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	score := 0
	for _, tok := range tokens {
		for _, w := range words {
			if sharedPrefix(tok, w) >= 3 {
				score++
				break
			}
		}
	}
	return score
}

func sharedPrefix(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := 0
	for n < len(ar) && n < len(br) && ar[n] == br[n] {
		n++
	}
	return n
}
