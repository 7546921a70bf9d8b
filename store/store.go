// Package store persists users and patients. Two collections, point
// lookups by identifier, no cross-document transactions. Handlers receive a
// Store value instead of reaching for a package-level handle, so tests can
// substitute the in-memory implementation.
package store

import (
	"context"
	"errors"
	"fmt"

	"safehaven/config"
	"safehaven/models"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrDuplicateUsername = errors.New("store: username already taken")
)

type Store interface {
	// CreateUser inserts a new user. Returns ErrDuplicateUsername when the
	// username is already taken; uniqueness is enforced by every backend.
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	// UserByUsername returns ErrNotFound when no such user exists.
	UserByUsername(ctx context.Context, username string) (models.User, error)

	// CreatePatient inserts a patient and returns it with the assigned id.
	CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error)
	// Patients lists every patient in insertion order.
	Patients(ctx context.Context) ([]models.Patient, error)
	// PatientByID returns ErrNotFound for unknown or malformed identifiers.
	PatientByID(ctx context.Context, id string) (models.Patient, error)
	// UpdatePatient replaces name, age and condition in place. The
	// identifier never changes. Returns ErrNotFound when nothing matched.
	UpdatePatient(ctx context.Context, id, name, age, condition string) error
	// DeletePatient is a silent no-op when nothing matched.
	DeletePatient(ctx context.Context, id string) error

	Close(ctx context.Context) error
}

// Open picks the backend configured in store_backend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.StoreBackend)
	}
}
