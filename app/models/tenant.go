package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)

// Tenant is the billing owner. Tenant CRUD lives outside this service; the
// columns here are the subset billing needs: identity, region/currency for
// gateway selection, API key auth and the storage usage counter.
type Tenant struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(150);not null" json:"name"`
	Email            string    `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	Country          string    `gorm:"type:varchar(2);not null;default:'US'" json:"country"`
	Currency         string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status           string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	APIKeyHash       string    `gorm:"type:varchar(64);index" json:"-"`
	StorageUsedBytes int64     `gorm:"not null;default:0" json:"storage_used_bytes"`
	APICallCount     int64     `gorm:"not null;default:0" json:"api_call_count"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// School belongs to a tenant. Only the columns needed for usage counting and
// subscription ownership are modelled here.
type School struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Member is a staff/teacher account under a tenant, counted against the
// "users" plan limit.
type Member struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	SchoolID  uint      `gorm:"index" json:"school_id"`
	Email     string    `gorm:"type:varchar(200);not null" json:"email"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Student is counted against the "students" plan limit.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	SchoolID  uint      `gorm:"not null;index" json:"school_id"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey derives the stored lookup hash for a tenant API key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new random tenant API key (returned once, only the
// hash is persisted).
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "cb_" + hex.EncodeToString(b), nil
}
