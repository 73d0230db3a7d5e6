package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// CreateMaterial stores reference content that generations can cite.
func (s *Service) CreateMaterial(ctx context.Context, m domain.Material) (*domain.Material, error) {
	var fields []domain.FieldError
	if strings.TrimSpace(m.Title) == "" {
		fields = append(fields, domain.FieldError{Field: "title", Error: "this field is required"})
	}
	if strings.TrimSpace(m.Content) == "" {
		fields = append(fields, domain.FieldError{Field: "content", Error: "this field is required"})
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError("invalid material", fields...)
	}

	if m.MaterialID == "" {
		m.MaterialID = "mat_" + uuid.New().String()[:8]
	}
	m.CreatedAt = time.Now()
	if err := s.store.CreateMaterial(ctx, &m); err != nil {
		return nil, errors.Wrap(err, "create material")
	}
	return &m, nil
}

func (s *Service) GetMaterial(ctx context.Context, materialID string) (*domain.Material, error) {
	m, err := s.store.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, errors.Wrap(err, "get material")
	}
	if m == nil {
		return nil, ErrMaterialNotFound
	}
	return m, nil
}
