package source

import (
	"errors"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func asConstructionError(err error, target **ConstructionError) bool {
	return errors.As(err, target)
}
