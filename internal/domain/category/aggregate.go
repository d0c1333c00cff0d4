package category

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/google/uuid"
)

const maxSlugLength = 50

var (
	ErrCategoryNotFound = apperror.New(apperror.KindNotFound, "Category not found")
	ErrInvalidName      = apperror.Validation("name is required", map[string]string{"name": "required"})
	ErrInvalidSlug      = apperror.Validation("invalid slug format", map[string]string{"slug": "lowercase letters, digits and single hyphens"})
	ErrSlugTaken        = apperror.New(apperror.KindConflict, "Category with this slug already exists")
	ErrSelfParent       = apperror.Validation("category cannot be its own parent", map[string]string{"parent_id": "must differ from id"})
)

// slugRegex validates slug format (lowercase letters, numbers, hyphens)
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	slugStrip   = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugHyphens = regexp.MustCompile(`-+`)
)

// Category represents a product category
type Category struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	ParentID    string      `json:"parent_id,omitempty"`
	SortOrder   int         `json:"sort_order"`
	Children    []*Category `json:"children,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Input carries the writable category fields
type Input struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
	SortOrder   int    `json:"sort_order"`
}

type Repository interface {
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*Category, error)
	GetBySlug(ctx context.Context, slug string) (*Category, error)
	List(ctx context.Context) ([]Category, error)
}

// Service handles category domain operations
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new category service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create creates a new category
func (s *Service) Create(ctx context.Context, in Input) (*Category, error) {
	slug, err := s.validate(ctx, "", in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &Category{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        slug,
		Description: in.Description,
		ParentID:    in.ParentID,
		SortOrder:   in.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the writable fields of an existing category
func (s *Service) Update(ctx context.Context, id string, in Input) (*Category, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ParentID == id {
		return nil, ErrSelfParent
	}
	slug, err := s.validate(ctx, id, in)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(in.Name)
	existing.Slug = slug
	existing.Description = in.Description
	existing.ParentID = in.ParentID
	existing.SortOrder = in.SortOrder
	existing.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete deletes a category. Products keep existing without a category.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCategoryNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Category, error) {
	return s.repo.Get(ctx, id)
}

// Tree returns root categories with their children nested, ordered by sort order then name
func (s *Service) Tree(ctx context.Context) ([]*Category, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(all), nil
}

// validate checks the name and resolves the slug, returning the slug to store
func (s *Service) validate(ctx context.Context, selfID string, in Input) (string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", ErrInvalidName
	}

	// Generate slug from name if not provided
	slug := in.Slug
	if slug == "" {
		slug = GenerateSlug(in.Name)
	}
	if !slugRegex.MatchString(slug) {
		return "", ErrInvalidSlug
	}

	existing, err := s.repo.GetBySlug(ctx, slug)
	switch {
	case err == nil && existing.ID != selfID:
		return "", ErrSlugTaken
	case err != nil && !apperror.IsKind(err, apperror.KindNotFound):
		return "", err
	}

	if in.ParentID != "" {
		if _, err := s.repo.Get(ctx, in.ParentID); err != nil {
			if apperror.IsKind(err, apperror.KindNotFound) {
				return "", apperror.Validation("parent category does not exist", map[string]string{"parent_id": in.ParentID})
			}
			return "", err
		}
	}
	return slug, nil
}

// BuildTree nests categories under their parents. Orphans are treated as roots.
func BuildTree(all []Category) []*Category {
	nodes := make(map[string]*Category, len(all))
	for i := range all {
		c := all[i]
		c.Children = nil
		nodes[c.ID] = &c
	}

	var roots []*Category
	for i := range all {
		node := nodes[all[i].ID]
		if parent, ok := nodes[node.ParentID]; ok && node.ParentID != node.ID {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	sortCategories(roots)
	for _, n := range nodes {
		sortCategories(n.Children)
	}
	return roots
}

func sortCategories(cs []*Category) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].SortOrder != cs[j].SortOrder {
			return cs[i].SortOrder < cs[j].SortOrder
		}
		return cs[i].Name < cs[j].Name
	})
}

// GenerateSlug creates a URL-friendly slug from a name
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, "_", " ")
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = strings.TrimSpace(slug)
	slug = slugSpaces.ReplaceAllString(slug, "-")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}
