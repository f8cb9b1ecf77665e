package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/config"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time                         { return c.now }
func (c *fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (c *fixedClock) Sleep(d time.Duration)                  {}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	config.Set(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)
	config.Set(config.DATABASE_SQLLITE_FILE_NAME, filepath.Join(t.TempDir(), "chainflow_test.db"))
	db, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testDefinition() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		Name:               "Cross-network payment",
		Description:        "onramp then bridge",
		SourceAddress:      "0xsource",
		DestinationAddress: "0xdest",
		Steps: []domain.StepDefinition{
			{Type: models.StepOnramp, Network: models.NetworkA, Token: "USDC", Amount: decimal.NewFromInt(1000)},
			{Type: models.StepBridge, Network: models.NetworkA, DestinationNetwork: models.NetworkB, Token: "USDC", Amount: decimal.RequireFromString("999.5")},
		},
	}
}

func newRepo(t *testing.T) (*WorkflowRepository, *fixedClock) {
	clock := &fixedClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewWorkflowRepository(openTestDB(t), clock), clock
}
