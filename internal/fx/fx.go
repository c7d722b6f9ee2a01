// Package fx converts movement amounts among the three ledger
// currencies. All conversions route through CLP as the hub, so the
// rate table stays at three pairwise ratios regardless of direction.
package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-uncommons/uncommons/backoff"
	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// ErrUnavailable is returned when a conversion cannot be priced, e.g.
// an externally-rated currency with no price lookup configured.
var ErrUnavailable = errors.New("fx: price unavailable")

// Rates holds the three pairwise ratios supplied by configuration.
// CLPPerGBP may be zero, in which case it derives from the other two.
type Rates struct {
	CLPPerUSD decimal.Decimal
	GBPPerUSD decimal.Decimal
	CLPPerGBP decimal.Decimal
}

// clpPer returns how many CLP one unit of c is worth.
func (r Rates) clpPer(c model.Currency) (decimal.Decimal, error) {
	switch c {
	case model.CLP:
		return decimal.NewFromInt(1), nil
	case model.USD:
		if r.CLPPerUSD.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("fx: missing CLP/USD rate")
		}
		return r.CLPPerUSD, nil
	case model.GBP:
		if !r.CLPPerGBP.IsZero() {
			return r.CLPPerGBP, nil
		}
		if r.CLPPerUSD.IsZero() || r.GBPPerUSD.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("fx: missing rates to derive CLP/GBP")
		}
		return r.CLPPerUSD.Div(r.GBPPerUSD), nil
	}
	return decimal.Decimal{}, fmt.Errorf("fx: no hub rate for %s", c)
}

// RateSource supplies the current pairwise rates, refreshable on
// demand.
type RateSource interface {
	Rates(ctx context.Context) (Rates, error)
}

// StaticRates is a RateSource backed by a fixed rate table.
type StaticRates Rates

func (s StaticRates) Rates(context.Context) (Rates, error) { return Rates(s), nil }

// PriceLookup prices conversions for currencies outside the
// enumerated set. Implementations may return ErrUnavailable.
type PriceLookup interface {
	Price(ctx context.Context, amount decimal.Decimal, from, to model.Currency) (decimal.Decimal, error)
}

// Snapshots are the three pre-computed currency values of an amount.
// All three are invalid when conversion failed after retries.
type Snapshots struct {
	CLP decimal.NullDecimal
	USD decimal.NullDecimal
	GBP decimal.NullDecimal
}

// Empty reports whether no snapshot was computed.
func (s Snapshots) Empty() bool {
	return !s.CLP.Valid && !s.USD.Valid && !s.GBP.Valid
}

// Converter is the currency conversion service.
type Converter struct {
	rates       RateSource
	lookup      PriceLookup // may be nil
	maxAttempts int
	backoffBase time.Duration
}

// Option configures a Converter.
type Option func(*Converter)

// WithPriceLookup sets the fallback for non-enumerated currencies.
func WithPriceLookup(l PriceLookup) Option {
	return func(c *Converter) { c.lookup = l }
}

// WithRetry overrides the retry bound and backoff base.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(c *Converter) {
		c.maxAttempts = maxAttempts
		c.backoffBase = base
	}
}

// New creates a Converter. Default retry policy is 3 attempts with a
// 1s backoff base.
func New(rates RateSource, opts ...Option) *Converter {
	c := &Converter{
		rates:       rates,
		maxAttempts: 3,
		backoffBase: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Convert converts amount from one currency to another through the
// hub. Currencies outside the enumerated set are delegated to the
// price lookup.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to model.Currency) (decimal.Decimal, error) {
	if !from.Known() || !to.Known() {
		if c.lookup == nil {
			return decimal.Decimal{}, ErrUnavailable
		}
		priced, err := c.lookup.Price(ctx, amount, from, to)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("fx: lookup %s→%s: %w", from, to, err)
		}
		return round2(priced), nil
	}

	rates, err := c.rates.Rates(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fx: fetching rates: %w", err)
	}
	return convertWith(rates, amount, from, to)
}

func convertWith(rates Rates, amount decimal.Decimal, from, to model.Currency) (decimal.Decimal, error) {
	fromRate, err := rates.clpPer(from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	toRate, err := rates.clpPer(to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return round2(amount.Mul(fromRate).Div(toRate)), nil
}

// AllValues computes the three currency snapshots of an amount,
// retrying the whole computation with exponential backoff. On
// exhaustion it returns empty Snapshots; callers treat that as
// "needs repair", never as partial data.
func (c *Converter) AllValues(ctx context.Context, amount decimal.Decimal, currency model.Currency) Snapshots {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff.SleepWithContext(ctx, backoff.Exponential(c.backoffBase, attempt-1)); err != nil {
				return Snapshots{}
			}
		}
		snaps, err := c.allValuesOnce(ctx, amount, currency)
		if err == nil {
			return snaps
		}
	}
	return Snapshots{}
}

func (c *Converter) allValuesOnce(ctx context.Context, amount decimal.Decimal, currency model.Currency) (Snapshots, error) {
	var snaps Snapshots
	for _, target := range []model.Currency{model.CLP, model.USD, model.GBP} {
		var (
			value decimal.Decimal
			err   error
		)
		if target == currency {
			value = round2(amount)
		} else {
			value, err = c.Convert(ctx, amount, currency, target)
			if err != nil {
				return Snapshots{}, err
			}
		}
		switch target {
		case model.CLP:
			snaps.CLP = decimal.NewNullDecimal(value)
		case model.USD:
			snaps.USD = decimal.NewNullDecimal(value)
		case model.GBP:
			snaps.GBP = decimal.NewNullDecimal(value)
		}
	}
	return snaps, nil
}
