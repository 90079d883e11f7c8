package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/slots"
)

// PropertyRepository captures the persistence operations needed by the service.
type PropertyRepository interface {
	UpsertProperty(ctx context.Context, slug, address string) (persistence.Property, error)
	GetPropertyBySlug(ctx context.Context, slug string) (persistence.Property, error)
	ListProperties(ctx context.Context) ([]persistence.Property, error)
}

// PropertyInput captures onboarding fields for a property.
type PropertyInput struct {
	Slug    string `yaml:"slug" json:"slug"`
	Address string `yaml:"address" json:"address"`
}

// PropertyService onboards and lists properties.
type PropertyService struct {
	properties PropertyRepository
	logger     *slog.Logger
}

// NewPropertyService constructs a property service with the provided repository.
func NewPropertyService(properties PropertyRepository) *PropertyService {
	return NewPropertyServiceWithLogger(properties, nil)
}

// NewPropertyServiceWithLogger constructs a property service with a specified logger.
func NewPropertyServiceWithLogger(properties PropertyRepository, logger *slog.Logger) *PropertyService {
	return &PropertyService{properties: properties, logger: defaultLogger(logger)}
}

func (s *PropertyService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PropertyService", operation, attrs...)
}

// UpsertProperty validates input and creates or updates the property keyed
// by slug. A blank slug is derived from the address.
func (s *PropertyService) UpsertProperty(ctx context.Context, input PropertyInput) (property persistence.Property, err error) {
	if s == nil {
		err = fmt.Errorf("PropertyService is nil")
		return
	}

	input.Address = strings.TrimSpace(input.Address)
	input.Slug = strings.TrimSpace(input.Slug)
	if input.Slug == "" {
		input.Slug = slots.Slugify(input.Address)
	}

	logger := s.loggerWith(ctx, "UpsertProperty", "property_slug", input.Slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert property", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("property_id", property.ID).InfoContext(ctx, "property upserted")
	}()

	if vErr := validatePropertyInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.properties == nil {
		err = fmt.Errorf("property repository not configured")
		return
	}

	property, err = s.properties.UpsertProperty(ctx, input.Slug, input.Address)
	if err != nil {
		err = storeError(err)
	}
	return
}

// GetProperty resolves a property by slug.
func (s *PropertyService) GetProperty(ctx context.Context, slug string) (persistence.Property, error) {
	if s == nil {
		return persistence.Property{}, fmt.Errorf("PropertyService is nil")
	}
	property, err := s.properties.GetPropertyBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if isNotFound(err) {
			return persistence.Property{}, ErrUnknownProperty
		}
		return persistence.Property{}, storeError(err)
	}
	return property, nil
}

// ListProperties returns every property sorted by address.
func (s *PropertyService) ListProperties(ctx context.Context) (properties []persistence.Property, err error) {
	if s == nil {
		err = fmt.Errorf("PropertyService is nil")
		return
	}
	if s.properties == nil {
		return nil, nil
	}

	var raw []persistence.Property
	raw, err = s.properties.ListProperties(ctx)
	if err != nil {
		err = storeError(err)
		s.loggerWith(ctx, "ListProperties").ErrorContext(ctx, "failed to list properties", "error", err, "error_kind", ErrorKind(err))
		return
	}

	properties = make([]persistence.Property, len(raw))
	copy(properties, raw)
	sort.Slice(properties, func(i, j int) bool {
		if strings.EqualFold(properties[i].Address, properties[j].Address) {
			return properties[i].ID < properties[j].ID
		}
		return strings.ToLower(properties[i].Address) < strings.ToLower(properties[j].Address)
	})
	return properties, nil
}

func validatePropertyInput(input PropertyInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Address == "" {
		vErr.add("address", "address is required")
	}
	if input.Slug == "" {
		vErr.add("slug", "slug is required")
	} else if input.Slug != slots.Slugify(input.Slug) {
		vErr.add("slug", "slug must be lowercase letters, digits and dashes")
	}
	return vErr
}
