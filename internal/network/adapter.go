// Package network defines the adapter contract the step executor calls and a simulated implementation of it.
package network

import (
	"context"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

// Adapter performs a funds movement on one network. Failures are returned as *core.ChainError.
type Adapter interface {
	PerformTransfer(ctx context.Context, network models.NetworkID, from, to string, amount decimal.Decimal, token string) (*domain.Receipt, error)
}

// AdapterFunc lets a plain function satisfy Adapter.
type AdapterFunc func(ctx context.Context, network models.NetworkID, from, to string, amount decimal.Decimal, token string) (*domain.Receipt, error)

func (f AdapterFunc) PerformTransfer(ctx context.Context, network models.NetworkID, from, to string, amount decimal.Decimal, token string) (*domain.Receipt, error) {
	return f(ctx, network, from, to, amount, token)
}
