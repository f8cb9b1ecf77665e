// Package templates holds the built-in workflow definitions that can be started by name.
package templates

import (
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

type Template struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Definition  domain.WorkflowDefinition `json:"-"`
}

func step(typ models.StepType, network models.NetworkID, token string, amount int64) domain.StepDefinition {
	return domain.StepDefinition{Type: typ, Network: network, Token: token, Amount: decimal.NewFromInt(amount)}
}

func bridge(from, to models.NetworkID, token string, amount int64) domain.StepDefinition {
	s := step(models.StepBridge, from, token, amount)
	s.DestinationNetwork = to
	return s
}

func swap(network models.NetworkID, from, to string, amount int64) domain.StepDefinition {
	s := step(models.StepSwap, network, from, amount)
	s.DestinationToken = to
	return s
}

func transfer(network models.NetworkID, token string, amount int64, to string) domain.StepDefinition {
	s := step(models.StepTransfer, network, token, amount)
	s.ToAddress = to
	return s
}

func catalogue() []Template {
	return []Template{
		{
			ID:          "cross_chain_swap",
			Name:        "Cross-Chain Swap",
			Description: "Onramp $100 USDC on Chain A, bridge to Chain B, swap to WETH, transfer to destination",
			Definition: domain.WorkflowDefinition{
				Name:               "Cross-Chain Swap",
				Description:        "Onramp, bridge, swap and transfer across Chain A and Chain B",
				SourceAddress:      "0xSourceWallet001",
				DestinationAddress: "0xDestWallet001",
				Steps: []domain.StepDefinition{
					step(models.StepOnramp, models.NetworkA, "USDC", 100),
					bridge(models.NetworkA, models.NetworkB, "USDC", 100),
					swap(models.NetworkB, "USDC", "WETH", 100),
					transfer(models.NetworkB, "WETH", 100, "0xDestWallet001"),
				},
			},
		},
		{
			ID:          "multi_hop",
			Name:        "Multi-Hop Transfer",
			Description: "Bridge USDC from Chain A to Chain C, swap to target token, transfer to destination",
			Definition: domain.WorkflowDefinition{
				Name:               "Multi-Hop Transfer",
				Description:        "Bridge A to C, swap on C, transfer on C",
				SourceAddress:      "0xSourceWallet002",
				DestinationAddress: "0xDestWallet002",
				Steps: []domain.StepDefinition{
					bridge(models.NetworkA, models.NetworkC, "USDC", 250),
					swap(models.NetworkC, "USDC", "AVAX", 250),
					transfer(models.NetworkC, "AVAX", 250, "0xDestWallet002"),
				},
			},
		},
		{
			ID:          "failure_scenario",
			Name:        "Failure Recovery Test",
			Description: "Deliberately routes through unreliable chains to test recovery and withdrawal paths",
			Definition: domain.WorkflowDefinition{
				Name:               "Failure Recovery Test",
				Description:        "Bridge A to B, swap on B, bridge B to C, transfer on C (high failure probability)",
				SourceAddress:      "0xSourceWallet003",
				DestinationAddress: "0xDestWallet003",
				Steps: []domain.StepDefinition{
					bridge(models.NetworkA, models.NetworkB, "USDC", 500),
					swap(models.NetworkB, "USDC", "DAI", 500),
					bridge(models.NetworkB, models.NetworkC, "DAI", 500),
					transfer(models.NetworkC, "DAI", 500, "0xDestWallet003"),
				},
			},
		},
	}
}

// All returns a fresh copy of every template.
func All() []Template {
	return catalogue()
}

// Get returns the template with the given id.
func Get(id string) (Template, bool) {
	for _, t := range catalogue() {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
