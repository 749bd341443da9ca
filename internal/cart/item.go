// Package cart holds the session cart of the storefront and keeps it in sync with the remote cart store.
package cart

import (
	"github.com/shopspring/decimal"
)

// Item is a single cart line. Display fields are passed through as received.
type Item struct {
	ID       string          `json:"_id" validate:"required"`
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price" validate:"gt=0"`
	ImageURL string          `json:"imageUrl,omitempty"`
	// Quantity of the product in the cart. Zero means absent and reads as 1.
	Quantity int `json:"quantity,omitempty"`
}

// Qty returns the effective quantity of the item.
func (i Item) Qty() int {
	if i.Quantity < 1 {
		return 1
	}
	return i.Quantity
}

// Total returns price * quantity.
func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Qty())))
}

// Snapshot is an ordered view of the cart. Each ID appears at most once and every quantity is >= 1.
type Snapshot []Item

// Count returns the sum of quantities across all items, 0 for an empty cart.
func (s Snapshot) Count() int {
	total := 0
	for _, item := range s {
		total += item.Qty()
	}
	return total
}

// Subtotal returns the sum of line totals.
func (s Snapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s {
		total = total.Add(item.Total())
	}
	return total
}

// Index returns the position of the item with the given ID or -1.
func (s Snapshot) Index(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that does not share the backing array.
func (s Snapshot) Clone() Snapshot {
	if len(s) == 0 {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// Normalize turns a payload from the remote store into a valid snapshot.
// Items without an ID or with a negative quantity are dropped, absent quantities become 1
// and duplicate IDs are folded into their first occurrence.
func Normalize(items []Item) Snapshot {
	out := make(Snapshot, 0, len(items))
	for _, item := range items {
		if item.ID == "" || item.Quantity < 0 {
			continue
		}
		item.Quantity = item.Qty()
		if idx := out.Index(item.ID); idx >= 0 {
			out[idx].Quantity += item.Quantity
			continue
		}
		out = append(out, item)
	}
	return out
}
