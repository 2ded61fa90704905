package balance

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/batch-reconciler/internal/domain"
)

func TestTierColumn(t *testing.T) {
	tests := []struct {
		tier    domain.Tier
		want    string
		wantErr bool
	}{
		{domain.TierMonthly, "monthly_balance", false},
		{domain.TierLifetime, "lifetime_balance", false},
		{domain.TierTrial, "trial_balance", false},
		{domain.TierDaily, "daily_balance", false},
		{domain.Tier("gold"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			got, err := TierColumn(tt.tier)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrUnknownTier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreditQuery(t *testing.T) {
	query, args, err := creditQuery("user-1", domain.TierLifetime, 4)
	require.NoError(t, err)

	assert.Equal(t, "UPDATE users SET lifetime_balance = lifetime_balance + $1 WHERE id = $2", query)
	assert.Equal(t, []any{4, "user-1"}, args)

	_, _, err = creditQuery("user-1", domain.Tier(""), 1)
	require.ErrorIs(t, err, domain.ErrUnknownTier)
}

func TestResolveTier(t *testing.T) {
	tests := []struct {
		name     string
		batch    domain.Batch
		want     domain.Tier
		wantWarn bool
	}{
		{
			name:  "persisted tier wins over current plan",
			batch: domain.Batch{ID: "b1", FundingTier: "trial", UserPlan: "lifetime"},
			want:  domain.TierTrial,
		},
		{
			name:     "empty tier falls back to plan",
			batch:    domain.Batch{ID: "b2", UserPlan: "lifetime"},
			want:     domain.TierLifetime,
			wantWarn: true,
		},
		{
			name:     "unknown tier falls back to plan",
			batch:    domain.Batch{ID: "b3", FundingTier: "gold", UserPlan: "lite"},
			want:     domain.TierDaily,
			wantWarn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			got := ResolveTier(&tt.batch, logger)
			assert.Equal(t, tt.want, got)

			if tt.wantWarn {
				assert.Contains(t, buf.String(), "falling back to user plan")
				assert.Contains(t, buf.String(), "batch_id="+tt.batch.ID)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}
