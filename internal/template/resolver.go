package template

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/dispatchd/internal/domain"
)

// ErrNotFound is returned when no template matches the lookup.
var ErrNotFound = errors.New("template not found")

// Resolver loads template definitions from Postgres. Button JSON is parsed
// once per template version and served from the cache afterwards.
type Resolver struct {
	db    *pgxpool.Pool
	cache *buttonCache
}

func NewResolver(db *pgxpool.Pool) *Resolver {
	return &Resolver{db: db, cache: newButtonCache()}
}

func (r *Resolver) GetTemplate(ctx context.Context, businessID string, provider domain.Provider, name, language string) (*domain.TemplateMeta, error) {
	var (
		headerKind   string
		bodyVarCount int
		buttonsJSON  []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT header_kind, body_var_count, buttons
		FROM templates
		WHERE business_id = $1 AND provider = $2 AND name = $3 AND language_code = $4`,
		businessID, provider, name, language,
	).Scan(&headerKind, &bodyVarCount, &buttonsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get template")
	}

	key := cacheKey(businessID, provider, name, language)
	buttons, ok := r.cache.get(key)
	if !ok {
		buttons, err = parseButtons(buttonsJSON)
		if err != nil {
			return nil, err
		}
		r.cache.put(key, buttons)
	}

	return &domain.TemplateMeta{
		BusinessID:   businessID,
		Provider:     provider,
		Name:         name,
		LanguageCode: language,
		HeaderKind:   domain.HeaderKind(headerKind),
		BodyVarCount: bodyVarCount,
		Buttons:      toMeta(buttons),
	}, nil
}

func cacheKey(businessID string, provider domain.Provider, name, language string) string {
	return strings.Join([]string{businessID, string(provider), name, language}, "|")
}
