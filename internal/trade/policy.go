package trade

import (
	"math"

	"github.com/ulmis/ulmanbot-go/internal/items"
	"github.com/ulmis/ulmanbot-go/internal/ledger"
)

// Quote is the outcome of pricing a sale. The tax is minted to the house
// account, never deducted from the seller: the seller receives the full
// sold value.
type Quote struct {
	SoldValue int64
	TaxPaid   int64
}

// QuoteSale prices a batch of unique items using the catalog's
// attribute-aware valuation when one is defined.
func QuoteSale(it items.Item, selected []ledger.UniqueItem, taxRate float64) Quote {
	var sum int64
	for _, u := range selected {
		sum += it.ValueOf(u.Attributes)
	}
	return QuoteValue(sum, taxRate)
}

// QuoteValue prices an already-summed sold value.
func QuoteValue(soldValue int64, taxRate float64) Quote {
	return Quote{
		SoldValue: soldValue,
		TaxPaid:   int64(math.Floor(float64(soldValue) * taxRate)),
	}
}

// FreeSlots returns the account's remaining inventory slots, never negative.
func FreeSlots(acc *ledger.UserAccount) int {
	free := acc.Capacity - acc.TotalItemCount()
	if free < 0 {
		return 0
	}
	return free
}

// ShopPrice is the purchase price: twice the base value, reduced by the
// day's discount when one applies.
func ShopPrice(it items.Item, discount float64) int64 {
	base := it.Value * 2
	if discount <= 0 {
		return base
	}
	return base - int64(math.Floor(float64(base)*discount))
}
