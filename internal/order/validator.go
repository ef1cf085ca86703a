package order

import (
	"github.com/shopspring/decimal"

	"tradingcore/internal/errs"
	"tradingcore/pkg/pair"
)

// ValidatorConfig holds the amount/value bounds spec §4.7's validator
// checks against.
type ValidatorConfig struct {
	MinOrderAmount  decimal.Decimal
	MaxOrderAmount  decimal.Decimal
	AmountPrecision int32
	MinOrderValue   decimal.Decimal
	MaxOrderValue   decimal.Decimal
	AllowedTypes    map[string]bool
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinOrderAmount:  decimal.NewFromFloat(0.0001),
		MaxOrderAmount:  decimal.NewFromInt(100000),
		AmountPrecision: 8,
		MinOrderValue:   decimal.NewFromInt(1),
		MaxOrderValue:   decimal.NewFromInt(1000000),
		AllowedTypes: map[string]bool{
			"market": true, "limit": true, "stop": true, "stop_limit": true, "oco": true,
		},
	}
}

var requiresPrice = map[string]bool{"limit": true, "stop_limit": true, "oco": true}
var requiresStopPrice = map[string]bool{"stop": true, "stop_limit": true, "oco": true}

// ValidateCreate applies spec §4.7's pre-create validator rules.
func (cfg ValidatorConfig) ValidateCreate(o Order) error {
	if o.UserID == "" || o.Exchange == "" || o.Pair == "" || o.Type == "" || o.Side == "" || o.Amount.IsZero() {
		return errs.New(errs.Validation, "userId, exchange, pair, type, side and amount are required")
	}
	if !cfg.AllowedTypes[o.Type] {
		return errs.New(errs.Validation, "unsupported order type: "+o.Type)
	}
	if o.Side != "buy" && o.Side != "sell" {
		return errs.New(errs.Validation, "side must be buy or sell")
	}
	if o.TIF != "" && o.TIF != "GTC" && o.TIF != "IOC" && o.TIF != "FOK" {
		return errs.New(errs.Validation, "tif must be GTC, IOC or FOK")
	}
	if !pair.ValidPattern.MatchString(o.Pair) {
		return errs.New(errs.Validation, "pair does not match canonical BASE/QUOTE pattern")
	}

	if err := cfg.validateAmount(o.Amount); err != nil {
		return err
	}

	if requiresPrice[o.Type] && !o.Price.IsPositive() {
		return errs.New(errs.Validation, "price is required for "+o.Type+" orders")
	}
	if requiresStopPrice[o.Type] && !o.StopPrice.IsPositive() {
		return errs.New(errs.Validation, "stopPrice is required for "+o.Type+" orders")
	}

	if o.Type == "stop_limit" && o.Price.IsPositive() && o.StopPrice.IsPositive() {
		if o.Side == "buy" && o.StopPrice.LessThan(o.Price) {
			return errs.New(errs.Validation, "buy stop_limit requires stopPrice >= price")
		}
		if o.Side == "sell" && o.StopPrice.GreaterThan(o.Price) {
			return errs.New(errs.Validation, "sell stop_limit requires stopPrice <= price")
		}
	}

	if o.Price.IsPositive() {
		value := o.Amount.Mul(o.Price)
		if value.LessThan(cfg.MinOrderValue) || value.GreaterThan(cfg.MaxOrderValue) {
			return errs.New(errs.Validation, "order value outside allowed range")
		}
	}

	return nil
}

func (cfg ValidatorConfig) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errs.New(errs.Validation, "amount must be positive")
	}
	if amount.LessThan(cfg.MinOrderAmount) || amount.GreaterThan(cfg.MaxOrderAmount) {
		return errs.New(errs.Validation, "amount outside allowed range")
	}
	if amount.Exponent() < -cfg.AmountPrecision {
		return errs.New(errs.Validation, "amount exceeds allowed decimal precision")
	}
	return nil
}

// ValidateUpdate applies spec §4.7's update rules: a terminal order cannot
// be updated, and amount may only decrease and never below filledAmount.
func (cfg ValidatorConfig) ValidateUpdate(existing Order, newAmount decimal.Decimal) error {
	if existing.Status.terminal() {
		return errs.New(errs.Conflict, "cannot update a terminal order")
	}
	if newAmount.GreaterThan(existing.Amount) {
		return errs.New(errs.Validation, "update cannot increase order amount")
	}
	if newAmount.LessThan(existing.FilledAmount) {
		return errs.New(errs.Validation, "update cannot reduce amount below filledAmount")
	}
	return cfg.validateAmount(newAmount)
}
