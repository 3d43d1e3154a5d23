package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"kazka/internal/models"

	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Intent status snapshots (poller fast path)
	GetIntent(ctx context.Context, invoiceID string) (*models.PaymentIntent, error)
	SetIntent(ctx context.Context, intent *models.PaymentIntent, ttl time.Duration) error
	DeleteIntent(ctx context.Context, invoiceID string) error

	// Session carts
	GetCart(ctx context.Context, sessionID string) (*models.Cart, error)
	SetCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error
	DeleteCart(ctx context.Context, sessionID string) error

	// Webhook rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) error

	// Generic string operations
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port as well as bare host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func intentKey(invoiceID string) string {
	return fmt.Sprintf("kazka:intent:%s", invoiceID)
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("kazka:cart:%s", sessionID)
}

func (r *redisCacheService) GetIntent(ctx context.Context, invoiceID string) (*models.PaymentIntent, error) {
	data, err := r.client.Get(ctx, intentKey(invoiceID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var intent models.PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *redisCacheService) SetIntent(ctx context.Context, intent *models.PaymentIntent, ttl time.Duration) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, intentKey(intent.ID), data, ttl).Err()
}

func (r *redisCacheService) DeleteIntent(ctx context.Context, invoiceID string) error {
	return r.client.Del(ctx, intentKey(invoiceID)).Err()
}

func (r *redisCacheService) GetCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *redisCacheService) SetCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cartKey(cart.SessionID), data, ttl).Err()
}

func (r *redisCacheService) DeleteCart(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, cartKey(sessionID)).Err()
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Get(ctx, "kazka:ratelimit:"+key).Int()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return count >= limit, nil
}

func (r *redisCacheService) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	fullKey := "kazka:ratelimit:" + key
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, "kazka:"+key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, "kazka:"+key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, "kazka:"+key).Err()
}
