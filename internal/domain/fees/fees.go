// Package fees converts marketplace fees charged against an order into the
// seller's home currency, line item by line item.
//
// The marketplace reports each line item's fees in the transaction currency
// and a single converted fee total. Converting each line on its own would not
// add up to that total, so the converted total is shared over the line items
// with the largest-remainder allocator.
package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-balancer/internal/domain/allocator"
)

// FixedFeeType is the per-order fixed part of the final value fee. It is
// tracked apart from the other fees so it can be posted separately.
const FixedFeeType = "FINAL_VALUE_FEE_FIXED_PER_ORDER"

const centPlaces = 2

var (
	// ErrCurrencyMismatch is returned when a fee is not in the transaction currency.
	ErrCurrencyMismatch = errors.New("fee in wrong currency")

	// ErrConvertedFee is returned when an individual marketplace fee has
	// already been converted, which would make the total conversion double count.
	ErrConvertedFee = errors.New("marketplace fee already converted")
)

// Money is an amount as reported by the marketplace.
type Money struct {
	Value                 decimal.Decimal `json:"value"`
	Currency              string          `json:"currency"`
	ConvertedFromCurrency string          `json:"converted_from_currency,omitempty"`
}

// Converted reports whether the amount was converted from another currency.
func (m Money) Converted() bool {
	return m.ConvertedFromCurrency != ""
}

// ParseMoney builds a Money from a string value.
func ParseMoney(value, currency string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Money{Value: d, Currency: currency}, nil
}

// MarketplaceFee is one fee charged against a line item.
type MarketplaceFee struct {
	FeeType string `json:"fee_type"`
	Amount  Money  `json:"amount"`
}

// LineItem is an order line item with its fees.
type LineItem struct {
	LineItemID string           `json:"line_item_id"`
	Fees       []MarketplaceFee `json:"marketplace_fees"`
}

// Transaction is a marketplace sale transaction.
type Transaction struct {
	ID             string     `json:"transaction_id"`
	Amount         Money      `json:"amount"`
	TotalFeeAmount Money      `json:"total_fee_amount"`
	LineItems      []LineItem `json:"order_line_items"`
}

// Conversion is the result of converting a transaction's fees.
type Conversion struct {
	TransactionID string                   `json:"transaction_id"`
	Converted     bool                     `json:"converted"`
	Fees          allocator.Shares[string] `json:"-"`
	FixedFees     allocator.Shares[string] `json:"-"`
	TotalFee      float64                  `json:"total_fee"`
}

// LineItemFees sums the fees of each line item in the transaction
// currency. Fixed per-order fees are summed into fixed as well as fees.
// Line items keep the order they appear in the transaction; a line item ID
// that appears again replaces the earlier entry in place.
//
// Every fee must be in currency and must not have been converted itself.
func LineItemFees(tx *Transaction, currency string) (fees, fixed allocator.Shares[string], err error) {
	fees = make(allocator.Shares[string], 0, len(tx.LineItems))
	fixed = make(allocator.Shares[string], 0, len(tx.LineItems))
	index := make(map[string]int, len(tx.LineItems))

	for _, li := range tx.LineItems {
		itemFee := decimal.Zero
		fixedFee := decimal.Zero
		for _, fee := range li.Fees {
			if fee.Amount.Currency != currency {
				return nil, nil, fmt.Errorf("transaction %s line item %s: %w (%s, want %s)",
					tx.ID, li.LineItemID, ErrCurrencyMismatch, fee.Amount.Currency, currency)
			}
			if fee.Amount.Converted() {
				return nil, nil, fmt.Errorf("transaction %s line item %s: %w", tx.ID, li.LineItemID, ErrConvertedFee)
			}
			itemFee = itemFee.Add(fee.Amount.Value)
			if fee.FeeType == FixedFeeType {
				fixedFee = fixedFee.Add(fee.Amount.Value)
			}
		}

		feeShare := allocator.Share[string]{Key: li.LineItemID, Value: itemFee.InexactFloat64()}
		fixedShare := allocator.Share[string]{Key: li.LineItemID, Value: fixedFee.InexactFloat64()}
		if i, seen := index[li.LineItemID]; seen {
			fees[i] = feeShare
			fixed[i] = fixedShare
			continue
		}
		index[li.LineItemID] = len(fees)
		fees = append(fees, feeShare)
		fixed = append(fixed, fixedShare)
	}

	return fees, fixed, nil
}

// ConvertFees converts the transaction's per-line-item fees to the home
// currency at exchangeRate.
//
// Transactions that were not converted keep their fees as they are. For
// converted transactions the converted total fee is shared over the line
// items so the per-item fees add up to it exactly; fixed fees are converted
// and rounded one by one. A zero exchange rate means the marketplace did not
// report one and is taken as 1.
func ConvertFees(tx *Transaction, currency string, exchangeRate float64) (*Conversion, error) {
	if exchangeRate == 0 {
		exchangeRate = 1
	}
	fees, fixed, err := LineItemFees(tx, currency)
	if err != nil {
		return nil, err
	}

	out := &Conversion{TransactionID: tx.ID}

	if !tx.Amount.Converted() {
		out.Fees = fees
		out.FixedFees = fixed
		out.TotalFee = roundCents(fees.Sum())
		return out, nil
	}

	if tx.TotalFeeAmount.Currency != currency {
		return nil, fmt.Errorf("transaction %s total fee: %w (%s, want %s)",
			tx.ID, ErrCurrencyMismatch, tx.TotalFeeAmount.Currency, currency)
	}
	homeTotal := tx.TotalFeeAmount.Value.Mul(decimal.NewFromFloat(exchangeRate)).InexactFloat64()
	divided, err := allocator.DivideRounded(fees, homeTotal, centPlaces)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}

	homeFixed := make(allocator.Shares[string], len(fixed))
	for i, f := range fixed {
		homeFixed[i] = allocator.Share[string]{Key: f.Key, Value: roundCents(f.Value * exchangeRate)}
	}

	out.Converted = true
	out.Fees = divided
	out.FixedFees = homeFixed
	out.TotalFee = roundCents(divided.Sum())
	return out, nil
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(centPlaces).InexactFloat64()
}
