package repository

import (
	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
)

// TenantRepository defines the interface for tenant-related database operations
type TenantRepository interface {
	Create(tenant *models.Tenant) error
	GetByID(id uint) (*models.Tenant, error)
	GetByEmail(email string) (*models.Tenant, error)
	GetByAPIKeyHash(hash string) (*models.Tenant, error)
	Update(tenant *models.Tenant) error
	AddStorageUsage(id uint, deltaBytes int64) error
	Count() (int64, error)
}

// SchoolRepository defines the interface for school-related database operations
type SchoolRepository interface {
	GetByID(id uint) (*models.School, error)
	ListByTenant(tenantID uint) ([]models.School, error)
	CountByTenant(tenantID uint) (int64, error)
}

// MemberRepository defines the interface for member-related database operations
type MemberRepository interface {
	CountByTenant(tenantID uint) (int64, error)
}

// StudentRepository defines the interface for student-related database operations
type StudentRepository interface {
	CountByTenant(tenantID uint) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Tenant  TenantRepository
	School  SchoolRepository
	Member  MemberRepository
	Student StudentRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tenant:  NewTenantRepository(db),
		School:  NewSchoolRepository(db),
		Member:  NewMemberRepository(db),
		Student: NewStudentRepository(db),
	}
}
