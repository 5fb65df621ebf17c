package repository

import (
	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
)

// schoolRepository implements SchoolRepository
type schoolRepository struct {
	db *gorm.DB
}

// NewSchoolRepository creates a new school repository
func NewSchoolRepository(db *gorm.DB) SchoolRepository {
	return &schoolRepository{db: db}
}

func (r *schoolRepository) GetByID(id uint) (*models.School, error) {
	var school models.School
	if err := r.db.First(&school, id).Error; err != nil {
		return nil, err
	}
	return &school, nil
}

func (r *schoolRepository) ListByTenant(tenantID uint) ([]models.School, error) {
	var schools []models.School
	err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&schools).Error
	return schools, err
}

func (r *schoolRepository) CountByTenant(tenantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.School{}).Where("tenant_id = ?", tenantID).Count(&count).Error
	return count, err
}

// memberRepository implements MemberRepository
type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) CountByTenant(tenantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Member{}).Where("tenant_id = ?", tenantID).Count(&count).Error
	return count, err
}

// studentRepository implements StudentRepository
type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) CountByTenant(tenantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Student{}).Where("tenant_id = ?", tenantID).Count(&count).Error
	return count, err
}
