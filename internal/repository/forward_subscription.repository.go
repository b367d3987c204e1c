package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/market-stream-service/internal/entity"
)

type ForwardSubscriptionRepository struct {
	db *sqlx.DB
}

func NewForwardSubscriptionRepository(db *sqlx.DB) *ForwardSubscriptionRepository {
	return &ForwardSubscriptionRepository{db: db}
}

func (r *ForwardSubscriptionRepository) GetAll(ctx context.Context) ([]entity.ForwardSubscription, error) {
	var subscriptions []entity.ForwardSubscription
	err := r.db.SelectContext(ctx, &subscriptions, "SELECT * FROM forward_subscriptions order by created_at desc")
	return subscriptions, err
}

func (r *ForwardSubscriptionRepository) GetActive(ctx context.Context) ([]entity.ForwardSubscription, error) {
	var subscriptions []entity.ForwardSubscription
	err := r.db.SelectContext(ctx, &subscriptions, "SELECT * FROM forward_subscriptions WHERE active order by symbol")
	return subscriptions, err
}

func (r *ForwardSubscriptionRepository) Upsert(ctx context.Context, symbol string, timeframe null.String) error {
	now := time.Now().UTC()

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.ForwardSubscription{}.TableName()).
		Columns(
			"id",
			"symbol",
			"timeframe",
			"active",
			"created_at",
			"updated_at",
		).
		Values(
			uuid.NewString(),
			symbol,
			timeframe,
			true,
			now,
			now,
		).
		Suffix(`ON CONFLICT (symbol, timeframe)
DO UPDATE SET
	active = TRUE,
	deactivated_at = NULL,
	updated_at = EXCLUDED.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *ForwardSubscriptionRepository) Deactivate(ctx context.Context, symbol string, timeframe null.String) error {
	now := time.Now().UTC()

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.ForwardSubscription{}.TableName()).
		Set("active", false).
		Set("deactivated_at", null.TimeFrom(now)).
		Set("updated_at", now).
		Where(sq.Eq{"symbol": symbol, "timeframe": timeframe})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
