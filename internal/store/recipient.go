package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// RecipientResolver maps a job's recipient reference to a destination
// address.
type RecipientResolver struct {
	db *pgxpool.Pool
}

func NewRecipientResolver(db *pgxpool.Pool) *RecipientResolver {
	return &RecipientResolver{db: db}
}

func (r *RecipientResolver) ResolveAddress(ctx context.Context, recipientID string) (string, error) {
	var addr string
	err := r.db.QueryRow(ctx,
		`SELECT phone_number FROM recipients WHERE id = $1`, recipientID).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "resolve recipient")
	}
	return addr, nil
}
