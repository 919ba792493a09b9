// Package allocator shares money totals across weighted parts.
//
// DivideRounded is the general largest-remainder allocator. Allocate builds
// on it to spread an actual order total across items in proportion to their
// list prices, which covers discounts, coupons, points and tax in one ratio:
//
//	multiplier = order_total / sum(item_list_prices)
//	item_cost = item_list_price * multiplier
package allocator

import (
	"errors"
	"math"
)

// centPlaces is the precision Allocate rounds to.
const centPlaces = 2

// Item represents an item to allocate costs to.
type Item struct {
	Name      string
	ListPrice float64
}

// Allocation represents the allocated cost for a single item.
type Allocation struct {
	Name          string
	ListPrice     float64
	AllocatedCost float64
}

// Result contains the allocation results.
type Result struct {
	Multiplier     float64
	Allocations    []Allocation
	TotalAllocated float64
}

// Allocate distributes orderTotal across items proportionally to their list prices.
// The allocated costs always sum to orderTotal rounded to cents.
// Returns an error if items is empty or any amount is negative.
func Allocate(items []Item, orderTotal float64) (*Result, error) {
	if len(items) == 0 {
		return nil, errors.New("no items to allocate")
	}
	if orderTotal < 0 {
		return nil, errors.New("order total cannot be negative")
	}

	var totalListPrice float64
	for _, item := range items {
		if item.ListPrice < 0 {
			return nil, errors.New("item list price cannot be negative")
		}
		totalListPrice += item.ListPrice
	}

	// Free orders and free items: nothing to share out
	if totalListPrice == 0 || roundToCents(orderTotal) == 0 {
		allocations := make([]Allocation, len(items))
		for i, item := range items {
			allocations[i] = Allocation{Name: item.Name, ListPrice: item.ListPrice}
		}
		return &Result{Allocations: allocations}, nil
	}

	// Items are keyed by position so duplicate names are fine
	weights := make(Shares[int], len(items))
	for i, item := range items {
		weights[i] = Share[int]{Key: i, Value: item.ListPrice}
	}

	divided, err := DivideRounded(weights, orderTotal, centPlaces)
	if err != nil {
		return nil, err
	}

	allocations := make([]Allocation, len(items))
	var totalAllocated float64
	for i, item := range items {
		allocations[i] = Allocation{
			Name:          item.Name,
			ListPrice:     item.ListPrice,
			AllocatedCost: roundToCents(divided[i].Value),
		}
		totalAllocated += allocations[i].AllocatedCost
	}

	return &Result{
		Multiplier:     orderTotal / totalListPrice,
		Allocations:    allocations,
		TotalAllocated: roundToCents(totalAllocated),
	}, nil
}

// roundToCents rounds a float to 2 decimal places.
func roundToCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
