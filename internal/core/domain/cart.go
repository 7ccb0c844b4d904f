package domain

import "github.com/shopspring/decimal"

// MaxCartEntries bounds the number of entries a single cart may hold.
const MaxCartEntries = 1000

// Cart keeps quantity as repeated entries in Items, in order of addition.
// Total always equals the sum of the entries' prices.
type Cart struct {
	ID      int64
	UserID  int64
	Items   []Item
	Total   decimal.Decimal
	Version int // optimistic locking
}

// AddItem appends quantity copies of item after the existing entries.
// The cart is left unchanged if it would exceed MaxCartEntries.
func (c *Cart) AddItem(item Item, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > MaxCartEntries-len(c.Items) {
		return ErrCartFull
	}
	for i := 0; i < quantity; i++ {
		c.Items = append(c.Items, item)
	}
	c.recomputeTotal()
	return nil
}

// RemoveItem drops up to quantity entries matching itemID, earliest first, and
// returns how many were removed. Missing entries are not an error.
func (c *Cart) RemoveItem(itemID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}

	removed := 0
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID == itemID && removed < quantity {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	// clear the tail so dropped items are not retained by the backing array
	for i := len(kept); i < len(c.Items); i++ {
		c.Items[i] = Item{}
	}
	c.Items = kept
	c.recomputeTotal()
	return removed, nil
}

func (c *Cart) recomputeTotal() {
	c.Total = SumPrices(c.Items)
}

// SumPrices adds the unit prices of items at decimal precision.
func SumPrices(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	return total
}
