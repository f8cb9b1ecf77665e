package domain

import (
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

// Receipt is the confirmation a network returns for a successful funds movement.
type Receipt struct {
	TxRef       string           `json:"txRef"`
	Network     models.NetworkID `json:"network"`
	Status      string           `json:"status"`
	Fee         decimal.Decimal  `json:"fee"`
	BlockHeight int64            `json:"blockHeight"`
	ConfirmMs   int64            `json:"confirmMs"`
}
