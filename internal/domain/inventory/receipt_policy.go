package inventory

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Product categories known to the shelf-life policy
const (
	CategoryPork    = "pork"
	CategoryBeef    = "beef"
	CategoryPoultry = "poultry"
)

// DefaultShelfLifeDays applies to categories missing from the policy table
const DefaultShelfLifeDays = 7

// ShelfLifePolicy maps a product category to its default shelf life in days
type ShelfLifePolicy map[string]int

// DefaultShelfLifePolicy returns the standard chilled-meat table
func DefaultShelfLifePolicy() ShelfLifePolicy {
	return ShelfLifePolicy{
		CategoryPork:    7,
		CategoryBeef:    10,
		CategoryPoultry: 5,
	}
}

// Days returns the shelf life for a category, case-insensitively
func (p ShelfLifePolicy) Days(category string) int {
	if days, ok := p[strings.ToLower(strings.TrimSpace(category))]; ok && days > 0 {
		return days
	}
	return DefaultShelfLifeDays
}

// ExpiryFor computes the expiry date of a receipt
func (p ShelfLifePolicy) ExpiryFor(category string, receiptDate time.Time) time.Time {
	return NormalizeDate(receiptDate).AddDate(0, 0, p.Days(category))
}

// LotSuffixFunc produces the random part of a generated lot number
type LotSuffixFunc func() string

// RandomLotSuffix returns a four digit random suffix
func RandomLotSuffix() string {
	return fmt.Sprintf("%04d", rand.IntN(10000))
}

// GenerateLotNumber builds LOT-<yyyymmdd>-<product_id>-<suffix>
func GenerateLotNumber(receiptDate time.Time, productID string, suffix LotSuffixFunc) string {
	if suffix == nil {
		suffix = RandomLotSuffix
	}
	return fmt.Sprintf("LOT-%s-%s-%s", NormalizeDate(receiptDate).Format("20060102"), productID, suffix())
}
