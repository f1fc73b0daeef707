package models

// The cart helpers below return modified copies and never touch the receiver's
// Items slice; they back the optimistic cart patches. Summary is left as is
// until the server recomputes it.

// WithAdded returns the cart with quantity more units of productID
func (c CartState) WithAdded(productID string, quantity int, unitPrice float64) CartState {
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].ProductID == productID {
			next.Items[i].Quantity += quantity
			next.Count += quantity
			return next
		}
	}
	next.Items = append(next.Items, CartItem{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	next.Count += quantity
	return next
}

// WithQuantity returns the cart with item itemID set to quantity.
// A quantity of zero or less removes the item.
func (c CartState) WithQuantity(itemID string, quantity int) CartState {
	if quantity <= 0 {
		return c.Without(itemID)
	}
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].ID == itemID {
			next.Count += quantity - next.Items[i].Quantity
			next.Items[i].Quantity = quantity
			break
		}
	}
	return next
}

// Without returns the cart without item itemID
func (c CartState) Without(itemID string) CartState {
	next := c
	next.Items = make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ID == itemID {
			next.Count -= item.Quantity
			continue
		}
		next.Items = append(next.Items, item)
	}
	if next.Count < 0 {
		next.Count = 0
	}
	return next
}

// ItemQuantity sums item quantities
func (c CartState) ItemQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c CartState) clone() CartState {
	next := c
	next.Items = make([]CartItem, len(c.Items))
	copy(next.Items, c.Items)
	return next
}

// WithStatus returns the orders with order id moved to status
func WithStatus(orders []Order, id, status string) []Order {
	next := make([]Order, len(orders))
	copy(next, orders)
	for i := range next {
		if next[i].ID == id {
			next[i].Status = status
		}
	}
	return next
}
