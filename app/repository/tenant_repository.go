package repository

import (
	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
)

// tenantRepository implements TenantRepository
type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(tenant *models.Tenant) error {
	return r.db.Create(tenant).Error
}

func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.First(&tenant, id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepository) GetByEmail(email string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.Where("email = ?", email).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetByAPIKeyHash resolves a tenant from the stored API key hash. Rows with
// an empty hash never match, so tenants without a key cannot authenticate.
func (r *tenantRepository) GetByAPIKeyHash(hash string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.Where("api_key_hash = ? AND api_key_hash <> ''", hash).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepository) Update(tenant *models.Tenant) error {
	return r.db.Save(tenant).Error
}

// AddStorageUsage adjusts the storage counter atomically in the database.
func (r *tenantRepository) AddStorageUsage(id uint, deltaBytes int64) error {
	return r.db.Model(&models.Tenant{}).
		Where("id = ?", id).
		UpdateColumn("storage_used_bytes", gorm.Expr("GREATEST(storage_used_bytes + ?, 0)", deltaBytes)).Error
}

func (r *tenantRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Tenant{}).Count(&count).Error
	return count, err
}
