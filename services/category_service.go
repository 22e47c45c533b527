package services

import (
	"context"
	"strings"

	"challenge-quest/models"
	"challenge-quest/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
)

type CategoryInput struct {
	Name        string
	Description string
	Icon        string
	Color       string
	IsActive    *bool
}

type CategoryPatch struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
	IsActive    *bool
}

type CategoryService struct {
	Store repository.Store
	Log   logrus.FieldLogger
}

func NewCategoryService(store repository.Store, log logrus.FieldLogger) *CategoryService {
	return &CategoryService{Store: store, Log: log}
}

var fold = cases.Fold()

// nameTaken reports whether another category already uses name, ignoring case.
func nameTaken(ctx context.Context, tx repository.Store, name, exceptID string) (bool, error) {
	all, err := tx.ListCategories(ctx, false)
	if err != nil {
		return false, err
	}
	key := fold.String(name)
	for _, c := range all {
		if c.ID != exceptID && fold.String(c.Name) == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *CategoryService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Validation("name is required")
	}
	c := &models.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug.Make(name),
		Description: in.Description,
		Icon:        in.Icon,
		Color:       in.Color,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		taken, err := nameTaken(ctx, tx, name, "")
		if err != nil {
			return Infra(err)
		}
		if taken {
			return ErrDuplicate
		}
		return storeErr(tx.CreateCategory(ctx, c), nil, ErrDuplicate)
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"category_id": c.ID, "name": c.Name}).Info("category created")
	return c, nil
}

func (s *CategoryService) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (*models.Category, error) {
	var out *models.Category
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		c, err := tx.GetCategory(ctx, id)
		if err != nil {
			return storeErr(err, ErrNotFound, nil)
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return Validation("name is required")
			}
			taken, err := nameTaken(ctx, tx, name, id)
			if err != nil {
				return Infra(err)
			}
			if taken {
				return ErrDuplicate
			}
			c.Name = name
			c.Slug = slug.Make(name)
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.Icon != nil {
			c.Icon = *patch.Icon
		}
		if patch.Color != nil {
			c.Color = *patch.Color
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
		}
		if err := tx.UpdateCategory(ctx, c); err != nil {
			return storeErr(err, ErrNotFound, ErrDuplicate)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithField("category_id", id).Info("category updated")
	return out, nil
}

// ToggleCategoryStatus flips IsActive.
func (s *CategoryService) ToggleCategoryStatus(ctx context.Context, id string) (*models.Category, error) {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	active := !c.IsActive
	return s.UpdateCategory(ctx, id, CategoryPatch{IsActive: &active})
}

// DeleteCategory removes the category. Challenges keep the name as a plain tag.
func (s *CategoryService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.Store.DeleteCategory(ctx, id); err != nil {
		return storeErr(err, ErrNotFound, nil)
	}
	s.Log.WithField("category_id", id).Info("category deleted")
	return nil
}

func (s *CategoryService) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	out, err := s.Store.ListCategories(ctx, activeOnly)
	if err != nil {
		return nil, Infra(err)
	}
	if out == nil {
		out = []models.Category{}
	}
	return out, nil
}

func (s *CategoryService) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	c, err := s.Store.GetCategory(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrNotFound, nil)
	}
	return c, nil
}
