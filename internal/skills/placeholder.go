package skills

import "context"

const (
	DefaultPlaceholderCategory = "general"
	DefaultPlaceholderLevel    = 5
)

// PlaceholderRegistry resolves every token to one fixed skill. It reproduces
// the scoring of deployments that never wired a real registry.
type PlaceholderRegistry struct {
	Category string
	Level    int
}

// Resolve implements Registry.
func (p PlaceholderRegistry) Resolve(ctx context.Context, _ string, tokenIDs []int64) ([]Skill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	category := p.Category
	if category == "" {
		category = DefaultPlaceholderCategory
	}
	level := p.Level
	if level <= 0 {
		level = DefaultPlaceholderLevel
	}
	out := make([]Skill, len(tokenIDs))
	for i := range tokenIDs {
		out[i] = Skill{Category: category, Level: level}
	}
	return out, nil
}

var _ Registry = PlaceholderRegistry{}
