// Package service composes the transfer history out of its write and read
// stores.
package service

import (
	"context"

	"github.com/eaglebank/wallet/shared/models"
)

type TransferAppender interface {
	Append(ctx context.Context, record *models.TransferRecord) error
}

type TransferCacher interface {
	CacheTransfer(ctx context.Context, record *models.TransferRecord)
}

// TransferHistory appends records to PostgreSQL and warms the read cache
// once the append is durable.
type TransferHistory struct {
	writer TransferAppender
	cache  TransferCacher
}

func NewTransferHistory(writer TransferAppender, cache TransferCacher) *TransferHistory {
	return &TransferHistory{writer: writer, cache: cache}
}

func (h *TransferHistory) Append(ctx context.Context, record *models.TransferRecord) error {
	if err := h.writer.Append(ctx, record); err != nil {
		return err
	}
	h.cache.CacheTransfer(ctx, record)
	return nil
}
