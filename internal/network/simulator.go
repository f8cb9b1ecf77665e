package network

import (
	"context"
	"encoding/hex"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

const (
	transientWeight = 0.75
	baseBlockHeight = 18_000_000
)

type failureTemplate struct {
	kind    models.FailureKind
	code    string
	message string
}

var transientFailures = []failureTemplate{
	{models.FailureTransient, "RPC_TIMEOUT", "RPC endpoint timed out"},
	{models.FailureTransient, "GAS_SPIKE", "Gas price spiked above threshold"},
	{models.FailureTransient, "NONCE_CONFLICT", "Nonce already used, needs refresh"},
}

var permanentFailures = []failureTemplate{
	{models.FailurePermanent, "INSUFFICIENT_BALANCE", "Insufficient token balance for operation"},
	{models.FailurePermanent, "NO_LIQUIDITY", "No liquidity available for this token pair"},
}

// Simulator is an Adapter backed by per-network reliability and fee models.
type Simulator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	clock      core.Clock
	maxLatency time.Duration
}

type SimulatorOption func(*Simulator)

// WithSeed makes the simulator deterministic.
func WithSeed(seed uint64) SimulatorOption {
	return func(s *Simulator) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithMaxLatency caps the simulated confirmation wait.
func WithMaxLatency(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.maxLatency = d }
}

func NewSimulator(clock core.Clock, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		clock:      clock,
		maxLatency: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulator) PerformTransfer(ctx context.Context, network models.NetworkID, from, to string, amount decimal.Decimal, token string) (*domain.Receipt, error) {
	cfg, ok := ConfigFor(network)
	if !ok {
		return nil, core.NewPermanentError(network, "INVALID_ROUTE", "unknown network "+string(network))
	}

	s.mu.Lock()
	confirm := time.Duration(float64(cfg.AvgConfirmation) * (0.5 + s.rng.Float64()))
	fail := s.rng.Float64() > cfg.Reliability
	var failure failureTemplate
	if fail {
		failure = s.pickFailure()
	}
	feeJitter := 0.8 + s.rng.Float64()*0.4
	block := baseBlockHeight + s.rng.Int64N(1_000_000)
	txRef := s.randomHex(32)
	s.mu.Unlock()

	wait := min(confirm, s.maxLatency)
	if err := core.SleepContext(ctx, s.clock, wait); err != nil {
		return nil, core.NewTransientError(network, "RPC_TIMEOUT", "request cancelled: "+err.Error())
	}

	if fail {
		slog.Debug("simulated network failure", "network", network, "code", failure.code, "from", from, "to", to, "amount", amount.String(), "token", token)
		return nil, &core.ChainError{
			Kind:      failure.kind,
			Code:      failure.code,
			Message:   failure.message,
			Network:   network,
			Retryable: failure.kind == models.FailureTransient,
		}
	}

	return &domain.Receipt{
		TxRef:       txRef,
		Network:     network,
		Status:      "confirmed",
		Fee:         cfg.BaseFee.Mul(decimal.NewFromFloat(feeJitter)).Round(6),
		BlockHeight: block,
		ConfirmMs:   confirm.Milliseconds(),
	}, nil
}

// caller holds s.mu
func (s *Simulator) pickFailure() failureTemplate {
	pool := permanentFailures
	if s.rng.Float64() < transientWeight {
		pool = transientFailures
	}
	return pool[s.rng.IntN(len(pool))]
}

// caller holds s.mu
func (s *Simulator) randomHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(s.rng.UintN(256))
	}
	return "0x" + hex.EncodeToString(b)
}
