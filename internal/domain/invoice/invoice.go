// Package invoice keeps currency-converted sales invoices internally consistent.
//
// A sales invoice is priced in the buyer's currency and converted to the
// company currency at a single rate. Converting each line on its own and
// rounding to cents leaves the line base amounts a cent or two away from
// the converted invoice total. BalanceBaseAmounts shares the converted total
// over the lines with the largest-remainder allocator so the two agree.
package invoice

import (
	"math"
	"strings"
)

// DefaultPrecision is the number of decimal places used for currency fields.
const DefaultPrecision = 2

// DefaultMarketplacePrefix marks POS profiles used for marketplace sales.
const DefaultMarketplacePrefix = "eBay"

// SalesInvoice holds the fields of a sales invoice that balancing reads and writes.
type SalesInvoice struct {
	Name                  string        `json:"name"`
	Currency              string        `json:"currency"`
	PartyAccountCurrency  string        `json:"party_account_currency"`
	ConversionRate        float64       `json:"conversion_rate"`
	POSProfile            string        `json:"pos_profile,omitempty"`
	IsPOS                 bool          `json:"is_pos"`
	IsReturn              bool          `json:"is_return"`
	IsDebitNote           bool          `json:"is_debit_note"`
	IsConsolidated        bool          `json:"is_consolidated"`
	DiscountAmountApplied bool          `json:"discount_amount_applied"`
	DisableRoundedTotal   bool          `json:"disable_rounded_total"`
	RoundedTotal          float64       `json:"rounded_total"`
	BaseRoundedTotal      float64       `json:"base_rounded_total"`
	Total                 float64       `json:"total"`
	NetTotal              float64       `json:"net_total"`
	BaseTotal             float64       `json:"base_total"`
	BaseNetTotal          float64       `json:"base_net_total"`
	Items                 []InvoiceItem `json:"items"`
}

// InvoiceItem is a single invoice line.
type InvoiceItem struct {
	ItemCode      string  `json:"item_code"`
	Qty           float64 `json:"qty"`
	Amount        float64 `json:"amount"`
	BaseAmount    float64 `json:"base_amount"`
	BaseRate      float64 `json:"base_rate"`
	BaseNetRate   float64 `json:"base_net_rate"`
	BaseNetAmount float64 `json:"base_net_amount"`
}

// IsMarketplaceInvoice reports whether inv is a POS invoice raised through a
// marketplace POS profile (one whose name starts with prefix).
func IsMarketplaceInvoice(inv *SalesInvoice, prefix string) bool {
	if prefix == "" {
		prefix = DefaultMarketplacePrefix
	}
	return inv.IsPOS && inv.POSProfile != "" && strings.HasPrefix(inv.POSProfile, prefix)
}

// PrepareForSave resets rounded totals before the invoice is saved or
// submitted. Marketplace invoices are never rounded.
func PrepareForSave(inv *SalesInvoice) {
	inv.DisableRoundedTotal = false
	inv.RoundedTotal = 0
	inv.BaseRoundedTotal = 0
}

// ConvertNetTotals recomputes the base totals directly from the invoice
// totals when the party account is kept in a different currency from the
// invoice. It reports whether anything changed.
func ConvertNetTotals(inv *SalesInvoice, precision int) bool {
	if inv.PartyAccountCurrency == "" || inv.PartyAccountCurrency == inv.Currency {
		return false
	}
	inv.BaseTotal = round(inv.Total*inv.ConversionRate, precision)
	inv.BaseNetTotal = round(inv.NetTotal*inv.ConversionRate, precision)
	return true
}

// round rounds to precision decimal places, half away from zero.
func round(v float64, precision int) float64 {
	factor := math.Pow10(precision)
	return math.Round(v*factor) / factor
}
