package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/events"
	"github.com/eaglebank/wallet/shared/middleware"
	sharedredis "github.com/eaglebank/wallet/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const identityKeyPrefix = "identity:phone:"

type identityEntry struct {
	OwnerID string `json:"owner_id"`
}

type userResponse struct {
	ID middleware.SubjectID `json:"id"`
}

// IdentityClient resolves phone numbers to owner ids through the user
// directory. Positive answers are cached in Redis until a user event says
// the mapping changed; misses are never cached.
type IdentityClient struct {
	t      *transport
	cache  *sharedredis.ViewCache[identityEntry]
	logger *zap.Logger
}

func NewIdentityClient(baseURL string, timeout time.Duration, bs BreakerSettings, redisClient goredis.UniversalClient, ttl time.Duration, logger *zap.Logger) *IdentityClient {
	return &IdentityClient{
		t:      newTransport("user-service", baseURL, timeout, bs, logger),
		cache:  sharedredis.NewViewCache[identityEntry](redisClient, identityKeyPrefix, ttl, logger),
		logger: logger,
	}
}

// Resolve returns the owner id registered for phone, or ErrReceiverNotFound.
func (c *IdentityClient) Resolve(ctx context.Context, phone string) (string, error) {
	if entry, ok := c.cache.Get(ctx, phone); ok && entry.OwnerID != "" {
		return entry.OwnerID, nil
	}

	var user userResponse
	err := c.t.do(ctx, http.MethodGet, "/internal/by-phone/"+url.PathEscape(phone), nil, &user)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return "", apperr.ErrReceiverNotFound
	}
	if err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", apperr.ErrReceiverNotFound
	}

	c.cache.Set(ctx, phone, &identityEntry{OwnerID: string(user.ID)})
	return string(user.ID), nil
}

// HandleUserEvent drops cached mappings touched by a user.events message.
func (c *IdentityClient) HandleUserEvent(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.UserUpdated:
		var payload events.UserUpdatedEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		c.forget(ctx, payload.PhoneNumber)
		c.forget(ctx, payload.PreviousPhoneNumber)
	case events.UserDeleted:
		var payload events.UserDeletedEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		c.forget(ctx, payload.PhoneNumber)
	default:
		c.logger.Debug("ignoring user event", zap.String("type", event.Type))
	}
	return nil
}

func (c *IdentityClient) forget(ctx context.Context, phone string) {
	if phone == "" {
		return
	}
	c.cache.Delete(ctx, phone)
}
