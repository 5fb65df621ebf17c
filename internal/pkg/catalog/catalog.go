package catalog

import (
	"sync"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/internal/pkg/apperr"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service is the read-mostly plan catalog. Plans are loaded once at startup
// into an immutable snapshot; Reload swaps the whole snapshot instead of
// mutating a shared map.
type Service struct {
	db *gorm.DB

	mu    sync.RWMutex
	plans map[string]*models.Plan
	order []string
}

// NewService creates a catalog service. Call Load before serving requests.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, plans: map[string]*models.Plan{}}
}

// Load reads all plans from the store and replaces the in-memory snapshot.
func (s *Service) Load() error {
	var rows []models.Plan
	if err := s.db.Order("price asc").Find(&rows).Error; err != nil {
		return err
	}

	plans := make(map[string]*models.Plan, len(rows))
	order := make([]string, 0, len(rows))
	for i := range rows {
		p := rows[i]
		plans[p.ID] = &p
		order = append(order, p.ID)
	}

	s.mu.Lock()
	s.plans = plans
	s.order = order
	s.mu.Unlock()

	log.Infof("[Catalog] Loaded %d plans", len(plans))
	return nil
}

// Get returns a plan by ID, active or not.
func (s *Service) Get(id string) (*models.Plan, error) {
	s.mu.RLock()
	p, ok := s.plans[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("plan %q not found", id)
	}
	cp := *p
	return &cp, nil
}

// GetActive returns a plan by ID and rejects deactivated plans.
func (s *Service) GetActive(id string) (*models.Plan, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.Validation("plan %q is no longer available", id)
	}
	return p, nil
}

// List returns plans ordered by price. With activeOnly, deactivated plans
// are filtered out.
func (s *Service) List(activeOnly bool) []*models.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Plan, 0, len(s.order))
	for _, id := range s.order {
		p := s.plans[id]
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Deactivate administratively retires a plan. Existing subscriptions keep
// running; new subscriptions can no longer pick it.
func (s *Service) Deactivate(id string) error {
	res := s.db.Model(&models.Plan{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("plan %q not found", id)
	}
	return s.Load()
}

// EnsureSeedPlans inserts the default plan set if the table is empty.
func (s *Service) EnsureSeedPlans() error {
	var count int64
	if err := s.db.Model(&models.Plan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if err := s.db.Create(SeedPlans()).Error; err != nil {
		return err
	}
	log.Info("[Catalog] Seeded default plans")
	return nil
}

// SeedPlans returns the default plan set for a fresh deployment.
func SeedPlans() []models.Plan {
	return []models.Plan{
		{
			ID:       "starter",
			Name:     "Starter",
			Price:    8000,
			Currency: "USD",
			Interval: models.PlanIntervalMonth,
			Features: []string{"basic_reports", "email_support"},
			Limits: map[string]int64{
				models.LimitSchools:      3,
				models.LimitUsers:        25,
				models.LimitStudents:     500,
				models.LimitAPICalls:     50000,
				models.LimitStorageBytes: 5 * 1024 * 1024 * 1024,
			},
			TrialDays: 14,
			IsActive:  true,
		},
		{
			ID:       "growth",
			Name:     "Growth",
			Price:    20000,
			Currency: "USD",
			Interval: models.PlanIntervalMonth,
			Features: []string{"basic_reports", "advanced_reports", "email_support", "priority_support"},
			Limits: map[string]int64{
				models.LimitSchools:      10,
				models.LimitUsers:        100,
				models.LimitStudents:     2500,
				models.LimitAPICalls:     250000,
				models.LimitStorageBytes: 25 * 1024 * 1024 * 1024,
			},
			TrialDays: 14,
			IsActive:  true,
		},
		{
			ID:       "enterprise",
			Name:     "Enterprise",
			Price:    50000,
			Currency: "USD",
			Interval: models.PlanIntervalMonth,
			Features: []string{"basic_reports", "advanced_reports", "email_support", "priority_support", "sso", "audit_log"},
			Limits: map[string]int64{
				models.LimitSchools:      models.UnlimitedLimit,
				models.LimitUsers:        models.UnlimitedLimit,
				models.LimitStudents:     models.UnlimitedLimit,
				models.LimitAPICalls:     models.UnlimitedLimit,
				models.LimitStorageBytes: models.UnlimitedLimit,
			},
			TrialDays: 30,
			IsActive:  true,
		},
	}
}
