package skills

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PGRegistry implements TokenStore using Postgres.
type PGRegistry struct {
	DB *sql.DB
}

// Mint inserts a token and returns it with its assigned id.
func (r *PGRegistry) Mint(ctx context.Context, owner, issuer, category string, level int) (Token, error) {
	if err := validateMint(owner, category, level); err != nil {
		return Token{}, err
	}
	token := Token{
		Owner:    strings.TrimSpace(owner),
		Category: strings.TrimSpace(category),
		Level:    level,
		Issuer:   issuer,
		MintedAt: time.Now().UTC(),
	}
	const query = `
INSERT INTO skill_tokens (owner, category, level, issuer, minted_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	if err := r.DB.QueryRowContext(ctx, query,
		token.Owner,
		token.Category,
		token.Level,
		token.Issuer,
		token.MintedAt,
	).Scan(&token.ID); err != nil {
		return Token{}, fmt.Errorf("insert skill token: %w", err)
	}
	return token, nil
}

// Get returns a token by id.
func (r *PGRegistry) Get(ctx context.Context, tokenID int64) (Token, error) {
	const query = `
SELECT id, owner, category, level, issuer, minted_at
FROM skill_tokens
WHERE id = $1`
	var token Token
	err := r.DB.QueryRowContext(ctx, query, tokenID).Scan(
		&token.ID,
		&token.Owner,
		&token.Category,
		&token.Level,
		&token.Issuer,
		&token.MintedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return token, nil
}

// Resolve implements Registry. Every id must exist.
func (r *PGRegistry) Resolve(ctx context.Context, owner string, tokenIDs []int64) ([]Skill, error) {
	if len(tokenIDs) == 0 {
		return []Skill{}, nil
	}
	query, args, err := sq.Select("id", "owner", "category", "level").
		From("skill_tokens").
		Where(sq.Eq{"id": tokenIDs}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build resolve query: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]Token, len(tokenIDs))
	for rows.Next() {
		var token Token
		if err := rows.Scan(&token.ID, &token.Owner, &token.Category, &token.Level); err != nil {
			return nil, err
		}
		byID[token.ID] = token
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tokens := make([]Token, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		token, ok := byID[id]
		if !ok {
			return nil, ErrNotFound
		}
		tokens = append(tokens, token)
	}
	return resolveTokens(owner, tokens)
}

var _ TokenStore = (*PGRegistry)(nil)
