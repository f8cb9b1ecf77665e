package network

import (
	"time"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

type ChainConfig struct {
	ID                models.NetworkID `json:"id"`
	Name              string           `json:"name"`
	Type              string           `json:"type"`
	AvgConfirmation   time.Duration    `json:"-"`
	AvgConfirmationMs int64            `json:"avgConfirmationMs"`
	BaseFee           decimal.Decimal  `json:"baseFee"`
	Reliability       float64          `json:"reliability"`
	Description       string           `json:"description"`
}

var chainConfigs = []ChainConfig{
	{
		ID:              models.NetworkA,
		Name:            "Ethereum Mainnet (Sim)",
		Type:            "L1",
		AvgConfirmation: 12 * time.Second,
		BaseFee:         decimal.RequireFromString("0.003"),
		Reliability:     0.95,
		Description:     "Slow confirmations (~12s), higher fees, reliable",
	},
	{
		ID:              models.NetworkB,
		Name:            "Optimism L2 (Sim)",
		Type:            "L2",
		AvgConfirmation: 2 * time.Second,
		BaseFee:         decimal.RequireFromString("0.0003"),
		Reliability:     0.90,
		Description:     "Fast confirmations (~2s), low fees, occasional reorgs",
	},
	{
		ID:              models.NetworkC,
		Name:            "Avalanche (Sim)",
		Type:            "Alt-L1",
		AvgConfirmation: 4 * time.Second,
		BaseFee:         decimal.RequireFromString("0.001"),
		Reliability:     0.80,
		Description:     "Medium speed, intermittent RPC failures",
	},
}

func init() {
	for i := range chainConfigs {
		chainConfigs[i].AvgConfirmationMs = chainConfigs[i].AvgConfirmation.Milliseconds()
	}
}

// Configs returns the known networks in a stable order.
func Configs() []ChainConfig {
	out := make([]ChainConfig, len(chainConfigs))
	copy(out, chainConfigs)
	return out
}

func ConfigFor(id models.NetworkID) (ChainConfig, bool) {
	for _, c := range chainConfigs {
		if c.ID == id {
			return c, true
		}
	}
	return ChainConfig{}, false
}
