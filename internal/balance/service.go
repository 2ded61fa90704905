package balance

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Service applies refunds and resets to user balances. Every write is a single
// atomic increment so it never races the billing path's debits.
type Service struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewService creates a new balance service
func NewService(db *sqlx.DB, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// TierColumn maps a tier to its users column
func TierColumn(tier domain.Tier) (string, error) {
	switch tier {
	case domain.TierMonthly:
		return "monthly_balance", nil
	case domain.TierLifetime:
		return "lifetime_balance", nil
	case domain.TierTrial:
		return "trial_balance", nil
	case domain.TierDaily:
		return "daily_balance", nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownTier, tier)
	}
}

// ResolveTier picks the tier to refund for a batch. The persisted funding tier wins;
// batches without one fall back to the user's current plan.
func ResolveTier(batch *domain.Batch, logger *slog.Logger) domain.Tier {
	tier, err := domain.ParseTier(batch.FundingTier)
	if err == nil {
		return tier
	}

	tier = domain.TierForPlan(batch.UserPlan)
	if logger != nil {
		logger.Warn("Batch has no usable funding tier, falling back to user plan",
			slog.String("batch_id", batch.ID),
			slog.String("funding_tier", batch.FundingTier),
			slog.String("user_plan", batch.UserPlan),
			slog.String("tier", string(tier)),
		)
	}
	return tier
}

func creditQuery(userID string, tier domain.Tier, amount int) (string, []any, error) {
	column, err := TierColumn(tier)
	if err != nil {
		return "", nil, err
	}

	return psql.Update("users").
		Set(column, sq.Expr(column+" + ?", amount)).
		Where(sq.Eq{"id": userID}).
		ToSql()
}

// Credit adds amount units to the user's tier balance
func (s *Service) Credit(ctx context.Context, userID string, tier domain.Tier, amount int) error {
	return s.credit(ctx, s.db, userID, tier, amount)
}

// CreditTx is Credit inside the caller's transaction
func (s *Service) CreditTx(ctx context.Context, tx *sqlx.Tx, userID string, tier domain.Tier, amount int) error {
	return s.credit(ctx, tx, userID, tier, amount)
}

func (s *Service) credit(ctx context.Context, exec sqlx.ExecerContext, userID string, tier domain.Tier, amount int) error {
	if amount <= 0 {
		return nil
	}

	query, args, err := creditQuery(userID, tier, amount)
	if err != nil {
		return err
	}

	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("%w: refund target user %s not found", domain.ErrInvariant, userID)
	}

	s.logger.Info("Balance credited",
		slog.String("user_id", userID),
		slog.String("tier", string(tier)),
		slog.Int("amount", amount),
	)

	return nil
}

// ResetDaily sets every user's daily balance to amount and returns the number of users touched
func (s *Service) ResetDaily(ctx context.Context, amount int) (int64, error) {
	query, args, err := psql.Update("users").
		Set("daily_balance", amount).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build reset query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("Daily balance reset",
		slog.Int("amount", amount),
		slog.Int64("users", rows),
	)

	return rows, nil
}
