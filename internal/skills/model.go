package skills

import (
	"errors"
	"time"
)

const (
	MinLevel = 1
	MaxLevel = 100
)

var (
	// ErrNotFound indicates a token id that was never minted.
	ErrNotFound = errors.New("skill token not found")

	// ErrInvalidInput indicates a malformed mint request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotOwner indicates a token presented by someone other than its holder.
	ErrNotOwner = errors.New("skill token not owned by caller")
)

// Token is a minted skill credential.
type Token struct {
	ID       int64
	Owner    string
	Category string
	Level    int
	Issuer   string
	MintedAt time.Time
}

// Skill is the (category, level) pair a token resolves to.
type Skill struct {
	Category string
	Level    int
}
