package music

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingInput = errors.New("input is required")
	ErrCatalogNil   = errors.New("catalog is not configured")
	ErrResolverNil  = errors.New("resolver is not configured")
)

// Service resolves catalog ids into playable stream references.
type Service struct {
	catalog  Catalog
	resolver StreamResolver
}

func NewService(catalog Catalog, resolver StreamResolver) *Service {
	return &Service{
		catalog:  catalog,
		resolver: resolver,
	}
}

func (s *Service) StreamURL(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingInput
	}
	if err := s.Validate(); err != nil {
		return "", err
	}

	track, err := s.catalog.ResolveTrack(ctx, id)
	if err != nil {
		return "", err
	}

	streamURL, err := s.resolver.StreamURL(ctx, track)
	if err != nil {
		return "", fmt.Errorf("stream for %s: %w", id, err)
	}
	return streamURL, nil
}

func (s *Service) Validate() error {
	if s == nil || s.catalog == nil {
		return ErrCatalogNil
	}
	if s.resolver == nil {
		return ErrResolverNil
	}
	return nil
}
