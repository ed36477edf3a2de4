package service

import "github.com/shopspring/decimal"

// taxRate is applied to the items subtotal of every order.
var taxRate = decimal.RequireFromString("0.16")

// defaultShippingRate prices delivery when the caller does not supply a
// shipping fee.
var defaultShippingRate = decimal.RequireFromString("0.05")

// OrderTotals is the derived money breakdown of one order.
type OrderTotals struct {
	Items    decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// computeTotals derives tax and the grand total from an items subtotal and a
// shipping fee. All amounts are rounded to cents.
func computeTotals(items, shipping decimal.Decimal) OrderTotals {
	items = items.Round(2)
	tax := items.Mul(taxRate).Round(2)
	shipping = shipping.Round(2)
	return OrderTotals{
		Items:    items,
		Tax:      tax,
		Shipping: shipping,
		Total:    items.Add(tax).Add(shipping).Round(2),
	}
}
