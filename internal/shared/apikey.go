package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey indicates the presented key did not match any caller.
var ErrInvalidAPIKey = errors.New("invalid api key")

// Caller identifies an authenticated service caller.
type Caller struct {
	ID   string
	Name string
}

// APIKeyStore verifies bcrypt-hashed API keys against the api_keys table.
type APIKeyStore struct {
	pool *pgxpool.Pool
}

// NewAPIKeyStore constructs the store.
func NewAPIKeyStore(pool *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{pool: pool}
}

// Verify resolves a raw key to its caller. Keys carry a "<id>.<secret>"
// shape so the hash lookup is a primary-key read.
func (s *APIKeyStore) Verify(ctx context.Context, keyID, secret string) (Caller, error) {
	if s == nil || s.pool == nil {
		return Caller{}, errors.New("api key store not initialised")
	}
	var caller Caller
	var hash []byte
	err := s.pool.QueryRow(ctx, `SELECT id, name, secret_hash FROM api_keys WHERE id = $1 AND revoked_at IS NULL`, keyID).
		Scan(&caller.ID, &caller.Name, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Caller{}, ErrInvalidAPIKey
		}
		return Caller{}, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(secret)) != nil {
		return Caller{}, ErrInvalidAPIKey
	}
	return caller, nil
}

// HashSecret derives the stored hash for a new key secret.
func HashSecret(secret string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

type callerContextKey struct{}

// ContextWithCaller stores the authenticated caller in context.
func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// CallerFromContext extracts the caller from context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(Caller)
	return c, ok
}
