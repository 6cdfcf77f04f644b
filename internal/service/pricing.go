package service

import (
	d "github.com/fjod/food-commerce/domain"
)

// catalogIDs returns the distinct ids of the cart in first-seen order.
func catalogIDs(cart []d.CartItem) []int64 {
	seen := make(map[int64]struct{}, len(cart))
	ids := make([]int64, 0, len(cart))
	for _, item := range cart {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}
	return ids
}

// priceCart joins every cart entry with its catalog item. The line total always
// uses the catalog price. Entries without a catalog match are returned as skipped ids.
func priceCart(cart []d.CartItem, catalog []d.CatalogItem) ([]d.PricedLine, []int64) {
	byID := make(map[int64]d.CatalogItem, len(catalog))
	for _, item := range catalog {
		byID[item.ID] = item
	}

	lines := make([]d.PricedLine, 0, len(cart))
	var skipped []int64
	skippedSeen := map[int64]struct{}{}
	for _, entry := range cart {
		item, ok := byID[entry.ID]
		if !ok {
			if _, dup := skippedSeen[entry.ID]; !dup {
				skippedSeen[entry.ID] = struct{}{}
				skipped = append(skipped, entry.ID)
			}
			continue
		}
		lines = append(lines, d.NewPricedLine(item, entry.Quantity))
	}
	return lines, skipped
}
