package usage

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/app/repository"
	"github.com/campushq/campusbill/internal/pkg/cache"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	apiCallsKey      = "tenant:counters:api_calls"
	snapshotKeyBase  = "tenant:usage:snapshot"
	snapshotCacheTTL = 5 * time.Minute
)

// Snapshot is a tenant's current consumption across all billable metrics,
// keyed by the same metric names the plan limits use.
type Snapshot struct {
	TenantID   uint             `json:"tenant_id"`
	Metrics    map[string]int64 `json:"metrics"`
	CapturedAt time.Time        `json:"captured_at"`
}

// Service assembles usage snapshots from the database and the Redis API-call
// counters.
type Service struct {
	db    *gorm.DB
	repos *repository.Repositories
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, repos: repository.NewRepositories(db)}
}

// AddAPICall increments the pending API call counter for a tenant in Redis.
func AddAPICall(tenantID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(tenantID), 10)
	return cache.GetClient().HIncrBy(ctx, apiCallsKey, field, 1).Err()
}

// FlushAPICalls drains the Redis API call counters into tenants.api_call_count.
// Uses RENAME to a temporary key for atomic drain without losing in-flight
// increments.
func (s *Service) FlushAPICalls() error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := apiCallsKey + ":tmp:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := rdb.Do(ctx, "RENAME", apiCallsKey, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	for field, value := range data {
		tenantID, perr := strconv.ParseUint(field, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(value, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		err := s.db.Model(&models.Tenant{}).
			Where("id = ?", tenantID).
			UpdateColumn("api_call_count", gorm.Expr("api_call_count + ?", inc)).Error
		if err != nil {
			log.Errorf("[Usage] Failed to flush API calls for tenant %d: %v", tenantID, err)
		}
	}
	return nil
}

// CurrentUsage returns the tenant's usage snapshot, serving from the Redis
// cache when fresh. Limit enforcement and overage billing both read from
// this.
func (s *Service) CurrentUsage(tenantID uint) (*Snapshot, error) {
	cacheKey := snapshotKey(tenantID)
	if raw, err := cache.Get(cacheKey); err == nil && raw != "" {
		var cached Snapshot
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	snapshot, err := s.captureSnapshot(tenantID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(snapshot); err == nil {
		if err := cache.Set(cacheKey, string(encoded), snapshotCacheTTL); err != nil {
			log.Warnf("[Usage] Failed to cache snapshot for tenant %d: %v", tenantID, err)
		}
	}
	return snapshot, nil
}

// InvalidateSnapshot drops the cached snapshot, forcing the next read to
// recount. Called after school or member mutations.
func InvalidateSnapshot(tenantID uint) {
	if err := cache.Delete(snapshotKey(tenantID)); err != nil {
		log.Warnf("[Usage] Failed to invalidate snapshot for tenant %d: %v", tenantID, err)
	}
}

func (s *Service) captureSnapshot(tenantID uint) (*Snapshot, error) {
	tenant, err := s.repos.Tenant.GetByID(tenantID)
	if err != nil {
		return nil, err
	}

	schools, err := s.repos.School.CountByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	members, err := s.repos.Member.CountByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	students, err := s.repos.Student.CountByTenant(tenantID)
	if err != nil {
		return nil, err
	}

	apiCalls := tenant.APICallCount
	// Include increments not yet flushed from Redis.
	field := strconv.FormatUint(uint64(tenantID), 10)
	if pending, err := cache.GetClient().HGet(context.Background(), apiCallsKey, field).Int64(); err == nil {
		apiCalls += pending
	}

	return &Snapshot{
		TenantID: tenantID,
		Metrics: map[string]int64{
			models.LimitSchools:      schools,
			models.LimitUsers:        members,
			models.LimitStudents:     students,
			models.LimitAPICalls:     apiCalls,
			models.LimitStorageBytes: tenant.StorageUsedBytes,
		},
		CapturedAt: time.Now(),
	}, nil
}

func snapshotKey(tenantID uint) string {
	return snapshotKeyBase + ":" + strconv.FormatUint(uint64(tenantID), 10)
}
