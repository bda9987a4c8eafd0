// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/autorules/pkg/actions"
	"github.com/dukex/autorules/pkg/persistence"
	"github.com/dukex/autorules/pkg/persistence/file"
	"github.com/dukex/autorules/pkg/persistence/postgresql"
)

var ErrUnsupportedPersistence = errors.New("unsupported persistence provider")

// DefaultEntityTypes are the entity types that get a field updater when none are configured.
var DefaultEntityTypes = []string{"quote", "invoice", "purchase_order"}

// Storage is a configured store together with one field updater per entity type.
type Storage struct {
	Store    persistence.Store
	Updaters map[string]actions.EntityUpdater
}

// NewStorage picks the backend from the database URL scheme. A URL without a scheme
// is a file store root.
func NewStorage(ctx context.Context, logger *slog.Logger, databaseURL string, entityTypes []string) (*Storage, error) {
	if len(entityTypes) == 0 {
		entityTypes = DefaultEntityTypes
	}

	provider, location := parsePersistenceProvider(databaseURL)
	updaters := make(map[string]actions.EntityUpdater, len(entityTypes))

	switch provider {
	case "file":
		if location == "" {
			return nil, fmt.Errorf("%w: file store needs a path", ErrUnsupportedPersistence)
		}

		store := file.NewPersistence(location)
		for _, entityType := range entityTypes {
			updaters[entityType] = store.EntityUpdater(entityType)
		}

		return &Storage{Store: store, Updaters: updaters}, nil

	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgresql persistence: %w", err)
		}

		for _, entityType := range entityTypes {
			updaters[entityType] = store.EntityUpdater(entityType)
		}

		return &Storage{Store: store, Updaters: updaters}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPersistence, provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, location, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, location
}

// ParseList splits a comma separated flag value, dropping blanks.
func ParseList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
