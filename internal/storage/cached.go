package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/cache"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

const subscriberCacheTTL = time.Hour

// CachedStorage читает подписчиков через кеш Redis. Кеш best-effort:
// его сбой приводит к чтению из базы, а не к ошибке запроса.
// Запись в кеш делает только чтение; сверка сбрасывает ключ после
// изменения записи.
type CachedStorage struct {
	*Storage
	cache *cache.Cache
	log   *slog.Logger
}

// NewCached оборачивает хранилище кешем.
func NewCached(s *Storage, c *cache.Cache, log *slog.Logger) *CachedStorage {
	return &CachedStorage{Storage: s, cache: c, log: log}
}

// GetByID возвращает подписчика из кеша, при промахе — из базы.
func (s *CachedStorage) GetByID(ctx context.Context, id string) (*models.Subscriber, error) {
	const op = "storage.CachedStorage.GetByID"
	key := "subscriber:" + id

	var cached models.Subscriber
	ok, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("subscriber cache read failed", sl.Op(op), sl.Err(err))
	} else if ok {
		return &cached, nil
	}

	sub, err := s.Storage.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, sub, subscriberCacheTTL); err != nil {
		s.log.Warn("subscriber cache write failed", sl.Op(op), sl.Err(err))
	}
	return sub, nil
}
