package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// Source loads the data the matchers need.
type Source interface {
	ActiveSuppliers(ctx context.Context) ([]models.Supplier, error)
	Client(ctx context.Context, id uint) (*models.Client, error)
	Orders(ctx context.Context, clientID uint) ([]models.ClientOrder, error)
}

// GormSource reads suppliers, clients and orders from the database.
type GormSource struct {
	DB *gorm.DB
}

// ActiveSuppliers returns active suppliers ordered by ID.
func (s GormSource) ActiveSuppliers(ctx context.Context) ([]models.Supplier, error) {
	var out []models.Supplier
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("matching: load suppliers: %w", err)
	}
	return out, nil
}

// Client returns the client with id, or nil when it does not exist.
func (s GormSource) Client(ctx context.Context, id uint) (*models.Client, error) {
	var c models.Client
	err := s.DB.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("matching: load client %d: %w", id, err)
	}
	return &c, nil
}

// Orders returns a client's past orders.
func (s GormSource) Orders(ctx context.Context, clientID uint) ([]models.ClientOrder, error) {
	var out []models.ClientOrder
	if err := s.DB.WithContext(ctx).Where("client_id = ?", clientID).Order("ordered_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("matching: load orders for client %d: %w", clientID, err)
	}
	return out, nil
}

// Matcher ranks suppliers for requests.
type Matcher struct {
	src         Source
	opts        CombineOpts
	skipOverall bool
	now         func() time.Time
}

// MatcherOpts holds parameters for creating a Matcher.
type MatcherOpts struct {
	Source   Source
	MinScore float64
	Limit    int // defaults to DefaultLimit
	Now      func() time.Time

	// SkipOverall leaves the overall-score signal out of the blend, so a
	// category-only supplier ranks at exactly 0.4 x its category score.
	SkipOverall bool
}

// NewMatcher creates a Matcher.
func NewMatcher(opts MatcherOpts) (*Matcher, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("matching: source is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Matcher{
		src:         opts.Source,
		opts:        CombineOpts{MinScore: opts.MinScore, Limit: opts.Limit},
		skipOverall: opts.SkipOverall,
		now:         opts.Now,
	}, nil
}

// Match ranks active suppliers for req. The overall-score signal is only
// added for suppliers another matcher already selected, and never when the
// matcher skips it.
func (m *Matcher) Match(ctx context.Context, req *models.Request) ([]Ranked, error) {
	if req == nil {
		return nil, fmt.Errorf("matching: request is required")
	}
	suppliers, err := m.src.ActiveSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	c := Criteria{
		Category: req.Category,
		Text:     req.RawContent,
		Now:      m.now(),
	}
	if req.Subcategory != nil {
		c.Subcategory = *req.Subcategory
	}
	if req.ClientID != nil {
		if c.Client, err = m.src.Client(ctx, *req.ClientID); err != nil {
			return nil, err
		}
		if c.Orders, err = m.src.Orders(ctx, *req.ClientID); err != nil {
			return nil, err
		}
	}

	var matches []Match
	matches = append(matches, CategoryMatch(c, suppliers)...)
	matches = append(matches, HistoryMatch(c, suppliers)...)
	matches = append(matches, GeographyMatch(c, suppliers)...)

	if m.skipOverall {
		return Combine(matches, m.opts), nil
	}
	hit := make(map[uint]bool)
	var selected []models.Supplier
	for _, mt := range matches {
		if !hit[mt.Supplier.ID] {
			hit[mt.Supplier.ID] = true
			selected = append(selected, mt.Supplier)
		}
	}
	matches = append(matches, OverallSignal(selected)...)
	return Combine(matches, m.opts), nil
}
