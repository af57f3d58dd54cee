package bsky

import (
	"context"
	"fmt"
	"time"
)

// Provider-published write limits, budgeted as abstract points over rolling
// windows. https://docs.bsky.app/docs/advanced-guides/rate-limits
const (
	writeOpsBudgetHour = 5000
	writeOpsBudgetDay  = 35000

	budgetWarnFraction = 0.95
)

// defaultWriteOpPoints maps endpoints to their write-op point cost. The map
// is configuration; deployments can extend it via Client.SetWriteOpPoints.
var defaultWriteOpPoints = map[string]int64{
	endpointCreateRecord: 3,
	endpointDeleteRecord: 1,
}

// SetWriteOpPoints sets the write-op point cost for an endpoint.
func (c *Client) SetWriteOpPoints(endpoint string, points int64) {
	c.pointsMap[endpoint] = points
}

// SetWriteOpsBudget overrides the budget for a window (test isolation).
func (c *Client) SetWriteOpsBudget(hours int, budget int64) {
	c.overrideBudgets[hours] = budget
}

// ClearWriteOpsBudget removes a per-window budget override.
func (c *Client) ClearWriteOpsBudget(hours int) {
	delete(c.overrideBudgets, hours)
}

// WriteOpsUsage returns the points consumed by the authenticated subject in
// the trailing window, and the window's budget.
func (c *Client) WriteOpsUsage(ctx context.Context, hours int) (used, budget int64, err error) {
	budget = c.writeOpsBudget(hours)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	used, err = c.store.WritePointsUsed(ctx, c.session.DID(), since)
	return used, budget, err
}

func (c *Client) writeOpsBudget(hours int) int64 {
	if b, ok := c.overrideBudgets[hours]; ok {
		return b
	}
	if hours == 1 {
		return writeOpsBudgetHour
	}
	return writeOpsBudgetDay
}

// checkWriteOpsBudget rejects the call before it is sent if the projected
// usage would meet or exceed the window's budget. Purely a gate; mutation
// happens later as a side effect of logging the call.
func (c *Client) checkWriteOpsBudget(ctx context.Context, hours int, points int64) error {
	used, budget, err := c.WriteOpsUsage(ctx, hours)
	if err != nil {
		return fmt.Errorf("rate limit usage query: %w", err)
	}

	if used+points >= budget {
		return &RateLimitError{WindowHours: hours, Used: used, Points: points, Budget: budget}
	}

	if float64(used+points) >= budgetWarnFraction*float64(budget) {
		c.logger.Warn("write ops budget nearly exhausted",
			"window_hours", hours, "used", used, "budget", budget)
	}
	return nil
}
