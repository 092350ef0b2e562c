package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const defaultCurrencyScale = 2

// PricingPolicy holds the shipping and tax rules applied when an order is placed.
type PricingPolicy struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPricingPolicy returns free shipping from 1000, a flat fee of 100 below it and 5% tax.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		FreeShippingThreshold: decimal.NewFromInt(1000),
		FlatShippingFee:       decimal.NewFromInt(100),
		TaxRate:               decimal.RequireFromString("0.05"),
	}
}

// OrderTotals is the pricing breakdown fixed on an order at creation.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
}

// Totals derives shipping, tax and total from the cart subtotal.
// total = subtotal + shipping + tax - discount, with discount always zero here.
func (p PricingPolicy) Totals(subtotal decimal.Decimal) OrderTotals {
	shipping := p.FlatShippingFee
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(p.TaxRate).Round(2)
	discount := decimal.Zero
	return OrderTotals{
		Subtotal:       subtotal,
		ShippingCharge: shipping,
		Tax:            tax,
		Discount:       discount,
		Total:          subtotal.Add(shipping).Add(tax).Sub(discount),
	}
}

// LineTotal multiplies a unit price by a quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// UnitPriceFromLine divides a line total back into a per-unit price rounded to cents.
func UnitPriceFromLine(lineTotal decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return lineTotal.Round(2)
	}
	return lineTotal.Div(decimal.NewFromInt(int64(quantity))).Round(2)
}

// CurrencyScale returns the number of minor-unit digits of an ISO 4217 code (0 for JPY, 3 for
// KWD). Unknown codes use 2.
func CurrencyScale(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return defaultCurrencyScale
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// MinorUnits converts an amount into the gateway's integer minor units for code, truncating
// anything below the smallest unit.
func MinorUnits(amount decimal.Decimal, code string) int64 {
	return amount.Shift(CurrencyScale(code)).IntPart()
}

// FromMinorUnits converts gateway minor units of code back to a currency amount.
func FromMinorUnits(amount int64, code string) decimal.Decimal {
	return decimal.New(amount, -CurrencyScale(code))
}
