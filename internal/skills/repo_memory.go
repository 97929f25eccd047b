package skills

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRegistry stores skill tokens in memory and is safe for concurrent use.
type MemoryRegistry struct {
	mu     sync.RWMutex
	lastID int64
	tokens map[int64]Token
	now    func() time.Time
}

// NewMemoryRegistry constructs a MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tokens: make(map[int64]Token),
		now:    time.Now,
	}
}

// Mint issues a new token to owner.
func (r *MemoryRegistry) Mint(ctx context.Context, owner, issuer, category string, level int) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if err := validateMint(owner, category, level); err != nil {
		return Token{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	token := Token{
		ID:       r.lastID,
		Owner:    strings.TrimSpace(owner),
		Category: strings.TrimSpace(category),
		Level:    level,
		Issuer:   issuer,
		MintedAt: r.now().UTC(),
	}
	r.tokens[token.ID] = token
	return token, nil
}

// Get returns a token by id.
func (r *MemoryRegistry) Get(ctx context.Context, tokenID int64) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return Token{}, ErrNotFound
	}
	return token, nil
}

// Resolve implements Registry.
func (r *MemoryRegistry) Resolve(ctx context.Context, owner string, tokenIDs []int64) ([]Skill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	tokens := make([]Token, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		token, ok := r.tokens[id]
		if !ok {
			r.mu.RUnlock()
			return nil, ErrNotFound
		}
		tokens = append(tokens, token)
	}
	r.mu.RUnlock()
	return resolveTokens(owner, tokens)
}

var _ TokenStore = (*MemoryRegistry)(nil)
