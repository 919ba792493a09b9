package invoice

import (
	"fmt"

	"github.com/eshaffer321/ledger-balancer/internal/domain/allocator"
	"github.com/eshaffer321/ledger-balancer/internal/domain/validator"
)

// SkipReason explains why BalanceBaseAmounts left an invoice alone.
type SkipReason string

const (
	SkipNotSkipped      SkipReason = ""
	SkipNotMarketplace  SkipReason = "not_marketplace"
	SkipNoConversion    SkipReason = "no_conversion"
	SkipConsolidated    SkipReason = "consolidated"
	SkipDiscountApplied SkipReason = "discount_applied"
	SkipZeroAmount      SkipReason = "zero_amount"
	SkipAlreadyBalanced SkipReason = "already_balanced"
)

// LineChange records how a single line's base amount moved.
type LineChange struct {
	Index    int     `json:"index"`
	ItemCode string  `json:"item_code"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	BaseRate float64 `json:"base_rate"`
	Amount   float64 `json:"amount"`
}

// Outcome describes what balancing did to an invoice.
type Outcome struct {
	Invoice   string       `json:"invoice"`
	Skipped   SkipReason   `json:"skipped,omitempty"`
	BaseTotal float64      `json:"base_total"`
	Changes   []LineChange `json:"changes,omitempty"`
}

// Balanced reports whether item base amounts were rewritten.
func (o *Outcome) Balanced() bool {
	return o.Skipped == SkipNotSkipped
}

// ChangedLines counts the lines whose base amount actually moved. It is
// zero for a nil Outcome.
func (o *Outcome) ChangedLines() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, c := range o.Changes {
		if c.Before != c.After {
			n++
		}
	}
	return n
}

// Balance runs the marketplace save hooks on inv: rounded totals are reset,
// party currency totals are converted and line base amounts are balanced.
// Invoices not raised through a marketplace POS profile keep the stock
// calculation and come back untouched with SkipNotMarketplace.
func Balance(inv *SalesInvoice, precision int, marketplacePrefix string) (*Outcome, error) {
	if !IsMarketplaceInvoice(inv, marketplacePrefix) {
		return &Outcome{Invoice: inv.Name, Skipped: SkipNotMarketplace}, nil
	}
	PrepareForSave(inv)
	ConvertNetTotals(inv, precision)
	return BalanceBaseAmounts(inv, precision)
}

// BalanceBaseAmounts shares the converted item total over the invoice lines
// so that line base amounts sum to round(rate * sum(amount), precision).
//
// Each line's base rate follows from its new base amount. Lines with zero
// quantity carry the amount in the rate: negated on returns, as-is on debit
// notes. Invoices that need no work are returned with a SkipReason. An
// allocation failure is returned to the caller, who may choose to accept
// the rounding mismatch.
func BalanceBaseAmounts(inv *SalesInvoice, precision int) (*Outcome, error) {
	out := &Outcome{Invoice: inv.Name}

	switch {
	case inv.ConversionRate == 1.0:
		out.Skipped = SkipNoConversion
		return out, nil
	case inv.IsConsolidated:
		out.Skipped = SkipConsolidated
		return out, nil
	case inv.DiscountAmountApplied:
		out.Skipped = SkipDiscountApplied
		return out, nil
	}

	var amountTotal float64
	amounts := make([]float64, len(inv.Items))
	baseAmounts := make([]float64, len(inv.Items))
	for i, item := range inv.Items {
		amountTotal += item.Amount
		amounts[i] = item.Amount
		baseAmounts[i] = item.BaseAmount
	}
	if amountTotal == 0 {
		out.Skipped = SkipZeroAmount
		return out, nil
	}

	baseTotal := round(inv.ConversionRate*amountTotal, precision)
	out.BaseTotal = baseTotal

	if validator.ValidateTotal(baseAmounts, baseTotal, precision).Valid {
		out.Skipped = SkipAlreadyBalanced
		return out, nil
	}

	weights := make(allocator.Shares[int], len(inv.Items))
	for i, a := range amounts {
		weights[i] = allocator.Share[int]{Key: i, Value: a}
	}

	divided, err := allocator.DivideRounded(weights, baseTotal, precision)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", inv.Name, err)
	}

	for _, sh := range divided {
		item := &inv.Items[sh.Key]
		before := item.BaseAmount

		item.BaseAmount = round(sh.Value, precision)
		switch {
		case item.Qty == 0 && inv.IsReturn:
			item.BaseRate = round(-item.BaseAmount, precision)
		case item.Qty == 0 && inv.IsDebitNote:
			item.BaseRate = round(item.BaseAmount, precision)
		case item.Qty == 0:
			// Nothing to divide by; leave the rate as it was
		default:
			item.BaseRate = round(item.BaseAmount/item.Qty, precision)
		}
		item.BaseNetRate = item.BaseRate
		item.BaseNetAmount = item.BaseAmount

		out.Changes = append(out.Changes, LineChange{
			Index:    sh.Key,
			ItemCode: item.ItemCode,
			Before:   before,
			After:    item.BaseAmount,
			BaseRate: item.BaseRate,
			Amount:   item.Amount,
		})
	}

	return out, nil
}
