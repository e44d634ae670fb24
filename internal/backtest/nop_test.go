package backtest

import "testing"

func TestNopImplementationsSatisfyInterfaces(t *testing.T) {
	var _ Strategy = NopStrategy{}
	var _ Portfolio = NopPortfolio{}
}
