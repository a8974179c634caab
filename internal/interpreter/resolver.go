package interpreter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

type resolverEntry struct {
	id     int64
	name   string
	folded string
}

// Resolver maps free-text ledger names onto the ledger master. An exact
// case-insensitive match wins; otherwise a single ledger whose name contains
// the requested text is accepted. Ambiguous or unknown names stay unresolved.
type Resolver struct {
	entries []resolverEntry
}

// NewResolver indexes list.
func NewResolver(list []ledgers.Ledger) *Resolver {
	r := &Resolver{entries: make([]resolverEntry, 0, len(list))}
	for _, l := range list {
		folded := fold(l.Name)
		if folded == "" {
			continue
		}
		r.entries = append(r.entries, resolverEntry{id: l.ID, name: l.Name, folded: folded})
	}
	return r
}

// Resolve implements voucher.LedgerResolver.
func (r *Resolver) Resolve(name string) voucher.LedgerRef {
	ref := voucher.LedgerRef{Name: strings.TrimSpace(name)}
	want := fold(name)
	if want == "" {
		return ref
	}
	var exact []resolverEntry
	for _, e := range r.entries {
		if e.folded == want {
			exact = append(exact, e)
		}
	}
	if len(exact) == 1 {
		return matched(exact[0])
	}
	if len(exact) > 1 {
		return ref
	}
	var partial []resolverEntry
	for _, e := range r.entries {
		if strings.Contains(e.folded, want) {
			partial = append(partial, e)
		}
	}
	if len(partial) == 1 {
		return matched(partial[0])
	}
	return ref
}

func matched(e resolverEntry) voucher.LedgerRef {
	id := e.id
	return voucher.LedgerRef{ID: &id, Name: e.name}
}

// fold normalises s for caseless comparison. A Caser is stateful, so each
// call gets its own.
func fold(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
