package conversion

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/money"
)

// RateTable is an immutable directed table of exchange rates.
type RateTable struct {
	rates map[money.Currency]map[money.Currency]decimal.Decimal
}

type rateFile struct {
	Rates map[string]map[string]string `yaml:"rates"`
}

func NewRateTable(raw map[string]map[string]string) (RateTable, error) {
	table := RateTable{rates: make(map[money.Currency]map[money.Currency]decimal.Decimal, len(raw))}

	for from, targets := range raw {
		fromCur := money.NormalizeCurrency(from)
		if err := fromCur.Validate(); err != nil {
			return RateTable{}, fmt.Errorf("rate table: source currency %q: %w", from, err)
		}
		row := make(map[money.Currency]decimal.Decimal, len(targets))
		for to, rateStr := range targets {
			toCur := money.NormalizeCurrency(to)
			if err := toCur.Validate(); err != nil {
				return RateTable{}, fmt.Errorf("rate table: target currency %q: %w", to, err)
			}
			rate, err := decimal.NewFromString(rateStr)
			if err != nil {
				return RateTable{}, fmt.Errorf("rate table: %s->%s: %w", fromCur, toCur, err)
			}
			if !rate.IsPositive() {
				return RateTable{}, fmt.Errorf("rate table: %s->%s must be positive", fromCur, toCur)
			}
			row[toCur] = rate
		}
		table.rates[fromCur] = row
	}

	return table, nil
}

// DefaultRates is the table the service ships with.
func DefaultRates() RateTable {
	table, err := NewRateTable(map[string]map[string]string{
		"USD": {"EUR": "0.85", "GBP": "0.75"},
		"EUR": {"USD": "1.18", "GBP": "0.88"},
		"GBP": {"USD": "1.33", "EUR": "1.14"},
	})
	if err != nil {
		panic(err)
	}
	return table
}

// LoadRateTable reads a YAML file of the form:
//
//	rates:
//	  USD:
//	    EUR: "0.85"
func LoadRateTable(path string) (RateTable, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, fmt.Errorf("read rate table: %w", err)
	}

	var file rateFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return RateTable{}, fmt.Errorf("parse rate table: %w", err)
	}
	if len(file.Rates) == 0 {
		return RateTable{}, fmt.Errorf("rate table %s has no rates", path)
	}

	return NewRateTable(file.Rates)
}

func (t RateTable) Lookup(from, to money.Currency) (decimal.Decimal, bool) {
	row, ok := t.rates[from]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := row[to]
	return rate, ok
}

// Pairs lists every configured pair as "FROM/TO", sorted.
func (t RateTable) Pairs() []string {
	var pairs []string
	for from, row := range t.rates {
		for to := range row {
			pairs = append(pairs, fmt.Sprintf("%s/%s", from, to))
		}
	}
	sort.Strings(pairs)
	return pairs
}

// StaticProvider serves rates from an in-memory table.
type StaticProvider struct {
	table RateTable
}

func NewStaticProvider(table RateTable) *StaticProvider {
	return &StaticProvider{table: table}
}

func (p *StaticProvider) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	rate, ok := p.table.Lookup(from, to)
	if !ok {
		return decimal.Zero, errors.ErrUnsupportedPair
	}
	return rate, nil
}
