package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/models"
	sharedredis "github.com/eaglebank/wallet/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	transferViewKeyPrefix = "transfer:view:"
	transferViewTTL       = 24 * time.Hour
)

// TransferReadRepository handles read operations for the transfer history.
// Single records are immutable once written, so they are served from Redis
// with PostgreSQL as the fallback. Listings always hit PostgreSQL.
type TransferReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.TransferRecord]
}

func NewTransferReadRepository(db *sql.DB, redisClient goredis.UniversalClient, logger *zap.Logger) *TransferReadRepository {
	return &TransferReadRepository{
		db:    db,
		cache: sharedredis.NewViewCache[models.TransferRecord](redisClient, transferViewKeyPrefix, transferViewTTL, logger),
	}
}

// GetByID returns a record by attempting Redis first, then PostgreSQL.
func (r *TransferReadRepository) GetByID(ctx context.Context, transferID string) (*models.TransferRecord, error) {
	return r.cache.GetOrLoad(ctx, transferID, func(ctx context.Context) (*models.TransferRecord, error) {
		record, err := scanTransfer(r.db.QueryRowContext(ctx,
			`SELECT `+transferColumns+` FROM transfers WHERE transfer_id = $1`, transferID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrTransferNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get transfer: %w", err)
		}
		return record, nil
	})
}

// ListByAccount returns every record the account sent or received, most
// recent first.
func (r *TransferReadRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.TransferRecord, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE sender_account = $1 OR receiver_account = $1
		ORDER BY created_at DESC, transfer_id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	records := make([]*models.TransferRecord, 0)
	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return records, nil
}

// CacheTransfer stores a record in Redis. Called after a successful append.
func (r *TransferReadRepository) CacheTransfer(ctx context.Context, record *models.TransferRecord) {
	r.cache.Set(ctx, record.TransferID, record)
}
