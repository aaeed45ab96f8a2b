package command

import (
	"fmt"

	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/shopspring/decimal"
)

// SampleMethod selects how the rows of a query result are chosen.
type SampleMethod string

const (
	// SampleTake returns the first MaxRows rows.
	SampleTake SampleMethod = "take"

	// SampleRandom returns up to MaxRows rows from a random sample of the result.
	SampleRandom SampleMethod = "sample"

	DefaultMaxRows = 2500
)

var (
	DefaultSampleFraction = decimal.NewFromFloat(0.1)
)

// SamplingOptions controls how much of a query result is brought back to the client.
type SamplingOptions struct {
	Method SampleMethod

	// MaxRows is the maximum number of rows returned. A negative value returns every row.
	MaxRows int

	// Fraction is the fraction of rows sampled when Method is SampleRandom.
	Fraction decimal.Decimal

	// Coerce converts numeric values to int64 or float64. Otherwise, numbers are returned as their JSON text.
	Coerce bool
}

func DefaultSamplingOptions() SamplingOptions {
	return SamplingOptions{
		Method:   SampleTake,
		MaxRows:  DefaultMaxRows,
		Fraction: DefaultSampleFraction,
		Coerce:   true,
	}
}

// Validate returns an error wrapping livy.ErrBadConfiguration if the options are invalid.
func (o SamplingOptions) Validate() error {
	switch o.Method {
	case SampleTake:
	case SampleRandom:
		if o.Fraction.LessThan(decimal.Zero) || o.Fraction.GreaterThan(decimal.NewFromInt(1)) {
			return livy.NewBadConfigurationError(fmt.Sprintf("sample fraction must be within [0, 1], got %s", o.Fraction))
		}
	default:
		return livy.NewBadConfigurationError(fmt.Sprintf("unknown sample method \"%s\"", o.Method))
	}

	return nil
}

// AllRows returns true if every row of the result should be returned.
func (o SamplingOptions) AllRows() bool {
	return o.MaxRows < 0
}
