// Package steps turns a step definition into adapter calls and a uniform StepResult.
package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/RealZimboGuy/chainflow/internal/network"
	"github.com/RealZimboGuy/chainflow/internal/statemachine"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

const (
	fiatProvider   = "fiat_provider"
	bridgeContract = "bridge_contract"
	dexRouter      = "dex_router"

	onrampProvider = "fiat_onramp_sim"
	bridgeProvider = "cctp_sim"
	dexName        = "uniswap_sim"
)

// ExecutionContext carries what a step needs to know about its workflow.
type ExecutionContext struct {
	WorkflowID         string
	StepIndex          int
	SourceAddress      string
	DestinationAddress string
}

// Executor runs exactly one step attempt per call and never retries.
type Executor struct {
	adapter  network.Adapter
	clock    core.Clock
	slippage func() decimal.Decimal
}

type Option func(*Executor)

// WithSlippage overrides the swap output factor, normally drawn from [0.995, 0.999).
func WithSlippage(f func() decimal.Decimal) Option {
	return func(e *Executor) { e.slippage = f }
}

func NewExecutor(adapter network.Adapter, clock core.Clock, opts ...Option) *Executor {
	e := &Executor{
		adapter:  adapter,
		clock:    clock,
		slippage: randomSlippage,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func randomSlippage() decimal.Decimal {
	return decimal.NewFromFloat(0.995 + rand.Float64()*0.004)
}

// Execute runs the step. Adapter failures come back as a failed StepResult, never as an error.
// The returned error is reserved for an unsupported step type or an invalid status change.
func (e *Executor) Execute(ctx context.Context, def domain.StepDefinition, ec ExecutionContext) (domain.StepResult, error) {
	var run func(context.Context, domain.StepDefinition, ExecutionContext, *domain.StepResult) error
	switch def.Type {
	case models.StepOnramp:
		run = e.onramp
	case models.StepBridge:
		run = e.bridge
	case models.StepSwap:
		run = e.swap
	case models.StepTransfer:
		run = e.transfer
	default:
		return domain.StepResult{}, &core.UnsupportedStepTypeError{Type: def.Type}
	}

	res := domain.StepResult{
		StepIndex: ec.StepIndex,
		Type:      def.Type,
		Status:    models.StepPending,
		Network:   def.Network,
		Amount:    def.Amount,
		Token:     def.Token,
		Fee:       decimal.Zero,
		Metadata:  map[string]string{},
		Started:   e.clock.Now(),
	}
	if err := e.setStatus(&res, models.StepExecuting); err != nil {
		return res, err
	}

	callErr := run(ctx, def, ec, &res)
	res.DurationMs = e.clock.Now().Sub(res.Started).Milliseconds()

	if callErr != nil {
		code, msg := "UNKNOWN", callErr.Error()
		var ce *core.ChainError
		if errors.As(callErr, &ce) && ce.Code != "" {
			code = ce.Code
		}
		res.Error = msg
		res.Metadata["errorCode"] = code
		slog.Debug("step attempt failed", "workflowId", ec.WorkflowID, "step", ec.StepIndex, "type", def.Type, "code", code, "error", msg)
		return res, e.setStatus(&res, models.StepFailed)
	}

	done := e.clock.Now()
	res.Completed = &done
	return res, e.setStatus(&res, models.StepCompleted)
}

func (e *Executor) setStatus(res *domain.StepResult, to models.StepStatus) error {
	next, err := statemachine.TransitionStep(res.Status, to)
	if err != nil {
		return err
	}
	res.Status = next
	return nil
}

func (e *Executor) onramp(ctx context.Context, def domain.StepDefinition, ec ExecutionContext, res *domain.StepResult) error {
	rc, err := e.adapter.PerformTransfer(ctx, def.Network, fiatProvider, ec.SourceAddress, def.Amount, def.Token)
	if err != nil {
		return err
	}
	res.TxRef = rc.TxRef
	res.Fee = rc.Fee
	res.Metadata["provider"] = onrampProvider
	res.Metadata["blockNumber"] = fmt.Sprint(rc.BlockHeight)
	return nil
}

func (e *Executor) bridge(ctx context.Context, def domain.StepDefinition, ec ExecutionContext, res *domain.StepResult) error {
	dest := def.DestinationNetwork
	if dest == "" {
		dest = models.DefaultBridgeDestination
	}
	res.Metadata["destChain"] = string(dest)

	burn, err := e.adapter.PerformTransfer(ctx, def.Network, ec.SourceAddress, bridgeContract, def.Amount, def.Token)
	if err != nil {
		res.Metadata["failedLeg"] = "burn"
		return err
	}
	mint, err := e.adapter.PerformTransfer(ctx, dest, bridgeContract, ec.DestinationAddress, def.Amount, def.Token)
	if err != nil {
		// the burn leg already landed; keep its reference for reconciliation
		res.Metadata["failedLeg"] = "mint"
		res.Metadata["burnTx"] = burn.TxRef
		res.Fee = burn.Fee
		return err
	}

	res.TxRef = burn.TxRef
	res.Fee = burn.Fee.Add(mint.Fee)
	res.Metadata["bridgeProvider"] = bridgeProvider
	res.Metadata["sourceChain"] = string(def.Network)
	res.Metadata["burnTx"] = burn.TxRef
	res.Metadata["mintTx"] = mint.TxRef
	return nil
}

func (e *Executor) swap(ctx context.Context, def domain.StepDefinition, ec ExecutionContext, res *domain.StepResult) error {
	destToken := def.DestinationToken
	if destToken == "" {
		destToken = models.DefaultSwapToken
	}
	res.Metadata["destToken"] = destToken

	rc, err := e.adapter.PerformTransfer(ctx, def.Network, ec.SourceAddress, dexRouter, def.Amount, def.Token)
	if err != nil {
		return err
	}

	factor := e.slippage()
	res.TxRef = rc.TxRef
	res.Fee = rc.Fee
	res.Amount = def.Amount.Mul(factor).Round(2)
	res.Token = destToken
	res.Metadata["dex"] = dexName
	res.Metadata["inputToken"] = def.Token
	res.Metadata["outputToken"] = destToken
	res.Metadata["inputAmount"] = def.Amount.String()
	res.Metadata["slippage"] = decimal.NewFromInt(1).Sub(factor).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
	return nil
}

func (e *Executor) transfer(ctx context.Context, def domain.StepDefinition, ec ExecutionContext, res *domain.StepResult) error {
	to := def.ToAddress
	if to == "" {
		to = ec.DestinationAddress
	}
	res.Metadata["to"] = to

	rc, err := e.adapter.PerformTransfer(ctx, def.Network, ec.SourceAddress, to, def.Amount, def.Token)
	if err != nil {
		return err
	}
	res.TxRef = rc.TxRef
	res.Fee = rc.Fee
	return nil
}
