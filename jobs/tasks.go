package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProjectionRefresh rebuilds cached account balances after postings.
	TaskProjectionRefresh = "ledger:projection_refresh"
	// TaskIntegrityScan replays ledgers and flags divergent derived state.
	TaskIntegrityScan = "ledger:integrity_scan"
	// TaskFiscalYearCloseout performs follow-up work after a close.
	TaskFiscalYearCloseout = "ledger:fiscal_year_closeout"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
	// TaskStockRebuild replays one stock scope and rewrites its balance.
	TaskStockRebuild = "stock:rebuild_balance"
)

// ProjectionRefreshPayload identifies the accounts to refresh. An empty
// account list means the whole tenant.
type ProjectionRefreshPayload struct {
	TenantID   int64   `json:"tenant_id"`
	AccountIDs []int64 `json:"account_ids,omitempty"`
}

// NewProjectionRefreshTask constructs an Asynq task.
func NewProjectionRefreshTask(payload ProjectionRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProjectionRefresh, data), nil
}

// IntegrityScanPayload bounds the scan to one tenant, or all when zero.
type IntegrityScanPayload struct {
	TenantID int64 `json:"tenant_id,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}

// FiscalYearCloseoutPayload carries the closed fiscal year.
type FiscalYearCloseoutPayload struct {
	TenantID     int64 `json:"tenant_id"`
	FiscalYearID int64 `json:"fiscal_year_id"`
}

// NewFiscalYearCloseoutTask constructs an Asynq task.
func NewFiscalYearCloseoutTask(payload FiscalYearCloseoutPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiscalYearCloseout, data), nil
}

// StockRebuildPayload identifies one stock scope.
type StockRebuildPayload struct {
	TenantID    int64  `json:"tenant_id"`
	ProductID   int64  `json:"product_id"`
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
}

// NewStockRebuildTask constructs an Asynq task.
func NewStockRebuildTask(payload StockRebuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockRebuild, data), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task with no payload.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
