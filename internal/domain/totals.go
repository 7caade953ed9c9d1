package domain

// ItemTotal computes the line total for a quantity at a unit price.
func ItemTotal(quantity int, unitPrice int64) int64 {
	return int64(quantity) * unitPrice
}

// RecomputeOrderTotal derives the order total by summing the line totals of
// all non-deleted items. Every mutation path must call this instead of doing
// incremental arithmetic, so a partially applied change can never leave a
// stale total behind.
func RecomputeOrderTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		if item.DeletedAt != nil {
			continue
		}
		total += item.ItemTotal
	}
	return total
}
