package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/ledger/projection"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// IntegrityMetrics counts scan findings.
type IntegrityMetrics interface {
	IntegrityViolation()
}

// Scanner replays both ledgers and compares them against their derived state.
// Findings are surfaced loudly and never auto-corrected; an operator decides
// whether to rebuild.
type Scanner struct {
	pool      *pgxpool.Pool
	projector *projection.Projector
	accounts  projection.ReadRepository
	stockRepo *stock.Repository
	metrics   IntegrityMetrics
	logger    *slog.Logger
}

// NewScanner constructs Scanner.
func NewScanner(pool *pgxpool.Pool, projector *projection.Projector, accounts projection.ReadRepository, stockRepo *stock.Repository, metrics IntegrityMetrics, logger *slog.Logger) *Scanner {
	return &Scanner{pool: pool, projector: projector, accounts: accounts, stockRepo: stockRepo, metrics: metrics, logger: logger}
}

// Run scans one tenant, or every tenant when tenantID is zero. All scopes are
// checked even after the first finding; the aggregated error reports how many
// diverged.
func (s *Scanner) Run(ctx context.Context, tenantID int64) error {
	// Correlates the findings of one run across log lines.
	scanID := uuid.NewString()
	tenants := []int64{tenantID}
	if tenantID == 0 {
		var err error
		tenants, err = s.listTenants(ctx)
		if err != nil {
			return err
		}
	}
	s.logger.Info("integrity scan started",
		slog.String("scan_id", scanID), slog.Int("tenants", len(tenants)))

	var violations []error
	for _, tenant := range tenants {
		violations = append(violations, s.scanTenant(ctx, tenant)...)
	}
	if len(violations) == 0 {
		s.logger.Info("integrity scan clean", slog.String("scan_id", scanID))
		return nil
	}
	for _, v := range violations {
		s.logger.Error("integrity violation",
			slog.String("scan_id", scanID), slog.Any("error", v))
		if s.metrics != nil {
			s.metrics.IntegrityViolation()
		}
	}
	return shared.Integrityf("integrity scan %s: %d scope(s) diverged from replay", scanID, len(violations))
}

func (s *Scanner) scanTenant(ctx context.Context, tenantID int64) []error {
	var (
		violations []error
		g          errgroup.Group
	)
	g.SetLimit(4)

	accs, err := s.accounts.ListAccounts(ctx, tenantID)
	if err != nil {
		return []error{err}
	}
	results := make([]error, len(accs))
	for i, acc := range accs {
		g.Go(func() error {
			results[i] = s.projector.Verify(ctx, tenantID, acc.ID)
			return nil
		})
	}
	_ = g.Wait()
	for _, err := range results {
		if err != nil {
			violations = append(violations, err)
		}
	}

	scopes, err := s.stockRepo.ListScopes(ctx, tenantID)
	if err != nil {
		return append(violations, err)
	}
	for _, scope := range scopes {
		replayed, err := s.stockRepo.SumSignedQuantities(ctx, tenantID, scope.ProductID, scope.WarehouseID)
		if err != nil {
			violations = append(violations, err)
			continue
		}
		latest, err := s.stockRepo.LatestRunningBalance(ctx, tenantID, scope.ProductID, scope.WarehouseID)
		if err != nil {
			violations = append(violations, err)
			continue
		}
		if !replayed.Equal(latest) {
			violations = append(violations, shared.Integrityf(
				"stock: tenant %d product %d running balance %s diverges from replay %s",
				tenantID, scope.ProductID, latest.String(), replayed.String()))
			continue
		}
		if !replayed.Equal(scope.Qty) {
			violations = append(violations, shared.Integrityf(
				"stock: tenant %d product %d balance row %s diverges from replay %s",
				tenantID, scope.ProductID, scope.Qty.String(), replayed.String()))
		}
	}
	return violations
}

func (s *Scanner) listTenants(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// HandleIntegrityScan returns the handler for TaskIntegrityScan.
func HandleIntegrityScan(scanner *Scanner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IntegrityScanPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		err := scanner.Run(ctx, payload.TenantID)
		if err != nil && shared.KindOf(err) == shared.KindIntegrity {
			// Retrying will not change the ledger; the finding is already
			// logged and counted.
			return errors.Join(asynq.SkipRetry, err)
		}
		return err
	}
}
