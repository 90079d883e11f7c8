package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/leasing-assistant/internal/persistence"
)

type propertyRepoStub struct {
	upserted  []PropertyInput
	upsertErr error

	bySlug map[string]persistence.Property
	list   []persistence.Property
}

func (r *propertyRepoStub) UpsertProperty(ctx context.Context, slug, address string) (persistence.Property, error) {
	if r.upsertErr != nil {
		return persistence.Property{}, r.upsertErr
	}
	r.upserted = append(r.upserted, PropertyInput{Slug: slug, Address: address})
	return persistence.Property{ID: int64(len(r.upserted)), Slug: slug, Address: address}, nil
}

func (r *propertyRepoStub) GetPropertyBySlug(ctx context.Context, slug string) (persistence.Property, error) {
	property, ok := r.bySlug[slug]
	if !ok {
		return persistence.Property{}, persistence.ErrNotFound
	}
	return property, nil
}

func (r *propertyRepoStub) ListProperties(ctx context.Context) ([]persistence.Property, error) {
	return r.list, nil
}

func TestPropertyService_UpsertProperty(t *testing.T) {
	t.Run("validates required attributes", func(t *testing.T) {
		svc := NewPropertyService(&propertyRepoStub{})

		_, err := svc.UpsertProperty(context.Background(), PropertyInput{Slug: "Bad Slug", Address: "  "})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["address"]; !ok {
			t.Fatalf("expected address validation error, got %v", vErr.FieldErrors)
		}
		if _, ok := vErr.FieldErrors["slug"]; !ok {
			t.Fatalf("expected slug validation error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("derives slug from address", func(t *testing.T) {
		repo := &propertyRepoStub{}
		svc := NewPropertyService(repo)

		property, err := svc.UpsertProperty(context.Background(), PropertyInput{Address: "  215 16 St SE  "})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if property.Slug != "215-16-st-se" || property.Address != "215 16 St SE" {
			t.Fatalf("unexpected property %+v", property)
		}
	})

	t.Run("tags repository failures as store errors", func(t *testing.T) {
		svc := NewPropertyService(&propertyRepoStub{upsertErr: errors.New("disk full")})

		_, err := svc.UpsertProperty(context.Background(), PropertyInput{Slug: "a", Address: "A"})
		if ErrorKind(err) != "store_error" {
			t.Fatalf("expected store_error, got %q (%v)", ErrorKind(err), err)
		}
	})
}

func TestPropertyService_GetAndList(t *testing.T) {
	repo := &propertyRepoStub{
		bySlug: map[string]persistence.Property{"a": {ID: 1, Slug: "a", Address: "Zed Ave"}},
		list: []persistence.Property{
			{ID: 1, Slug: "a", Address: "Zed Ave"},
			{ID: 2, Slug: "b", Address: "alpha St"},
		},
	}
	svc := NewPropertyService(repo)

	if _, err := svc.GetProperty(context.Background(), "missing"); !errors.Is(err, ErrUnknownProperty) {
		t.Fatalf("expected ErrUnknownProperty, got %v", err)
	}

	properties, err := svc.ListProperties(context.Background())
	if err != nil {
		t.Fatalf("ListProperties failed: %v", err)
	}
	if len(properties) != 2 || properties[0].ID != 2 {
		t.Fatalf("expected case-insensitive address order, got %+v", properties)
	}
}
