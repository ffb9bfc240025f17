package momo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/cache"
)

// tokenExpirySlack is subtracted from a token's lifetime before caching so a
// token is never handed out moments before the network rejects it.
const tokenExpirySlack = 30 * time.Second

// TokenCache stores provider access tokens keyed by (provider, purpose).
// It is injected into clients as a collaborator; there is no hidden global.
type TokenCache interface {
	Get(provider Provider, purpose Purpose) (Token, bool)
	Put(provider Provider, purpose Purpose, token Token)
}

// MemoryTokenCache is a mutex-guarded in-process cache, used in tests and as
// a fallback when Redis is unavailable.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]Token)}
}

func (c *MemoryTokenCache) Get(provider Provider, purpose Purpose) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[tokenCacheKey(provider, purpose)]
	if !ok || !tok.Valid(time.Now().Add(tokenExpirySlack)) {
		return Token{}, false
	}
	return tok, true
}

func (c *MemoryTokenCache) Put(provider Provider, purpose Purpose, token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[tokenCacheKey(provider, purpose)] = token
}

// RedisTokenCache shares provider tokens across processes through the cache
// server. Failures degrade to cache misses.
type RedisTokenCache struct{}

func NewRedisTokenCache() *RedisTokenCache {
	return &RedisTokenCache{}
}

func (c *RedisTokenCache) Get(provider Provider, purpose Purpose) (Token, bool) {
	raw, err := cache.Get(tokenCacheKey(provider, purpose))
	if err != nil {
		return Token{}, false
	}
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		log.Warnf("[MoMo] Dropping undecodable cached token for %s/%s: %v", provider, purpose, err)
		return Token{}, false
	}
	if !tok.Valid(time.Now().Add(tokenExpirySlack)) {
		return Token{}, false
	}
	return tok, true
}

func (c *RedisTokenCache) Put(provider Provider, purpose Purpose, token Token) {
	ttl := time.Until(token.ExpiresAt) - tokenExpirySlack
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := cache.Set(tokenCacheKey(provider, purpose), raw, ttl); err != nil {
		log.Warnf("[MoMo] Failed to cache token for %s/%s: %v", provider, purpose, err)
	}
}

func tokenCacheKey(provider Provider, purpose Purpose) string {
	return fmt.Sprintf("momo:token:%s:%s", provider, purpose)
}

// cachedClient wraps a Client with token reuse. Expired entries are
// refreshed through the wrapped client's AcquireToken.
type cachedClient struct {
	Client
	tokens TokenCache
}

// WithTokenCache returns a Client whose AcquireToken consults the cache
// before hitting the network.
func WithTokenCache(c Client, tokens TokenCache) Client {
	return &cachedClient{Client: c, tokens: tokens}
}

func (c *cachedClient) AcquireToken(ctx context.Context, purpose Purpose) (Token, error) {
	if tok, ok := c.tokens.Get(c.Provider(), purpose); ok {
		return tok, nil
	}
	tok, err := c.Client.AcquireToken(ctx, purpose)
	if err != nil {
		return Token{}, err
	}
	c.tokens.Put(c.Provider(), purpose, tok)
	return tok, nil
}
