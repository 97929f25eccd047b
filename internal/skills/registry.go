package skills

import (
	"context"
	"strings"
)

// Registry resolves skill token ids into skills. When owner is non-empty the
// registry rejects tokens held by anyone else.
type Registry interface {
	Resolve(ctx context.Context, owner string, tokenIDs []int64) ([]Skill, error)
}

// Minter issues and looks up skill tokens.
type Minter interface {
	Mint(ctx context.Context, owner, issuer, category string, level int) (Token, error)
	Get(ctx context.Context, tokenID int64) (Token, error)
}

// TokenStore is a registry that also mints.
type TokenStore interface {
	Registry
	Minter
}

func validateMint(owner, category string, level int) error {
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(category) == "" {
		return ErrInvalidInput
	}
	if level < MinLevel || level > MaxLevel {
		return ErrInvalidInput
	}
	return nil
}

func resolveTokens(owner string, tokens []Token) ([]Skill, error) {
	out := make([]Skill, 0, len(tokens))
	for _, t := range tokens {
		if owner != "" && t.Owner != owner {
			return nil, ErrNotOwner
		}
		out = append(out, Skill{Category: t.Category, Level: t.Level})
	}
	return out, nil
}
