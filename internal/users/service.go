package users

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vega/editor-backend/internal/auth"
	"gorm.io/gorm"
)

// ErrInvalidPrincipal indicates the principal lacked a usable identifier.
var ErrInvalidPrincipal = errors.New("users: invalid principal")

// ServiceConfig describes the dependencies for user bookkeeping.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service records which users have authenticated against the backend.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// RecordLogin upserts the record for the authenticated principal, refreshing
// handle and profile fields on every login.
func (s *Service) RecordLogin(principal auth.Principal) error {
	userID := strings.TrimSpace(principal.ID)
	handle := strings.TrimSpace(principal.Handle)
	if userID == "" || handle == "" {
		return ErrInvalidPrincipal
	}

	var record Record
	err := s.db.Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = Record{
			UserID:      userID,
			Handle:      handle,
			DisplayName: strings.TrimSpace(principal.DisplayName),
			AvatarURL:   strings.TrimSpace(principal.AvatarURL),
			LastLoginAt: s.now(),
		}
		return s.db.Create(&record).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"handle":        handle,
		"last_login_at": s.now(),
	}
	if display := strings.TrimSpace(principal.DisplayName); display != "" {
		updates["display_name"] = display
	}
	if avatar := strings.TrimSpace(principal.AvatarURL); avatar != "" {
		updates["avatar_url"] = avatar
	}
	return s.db.Model(&Record{}).Where("user_id = ?", userID).Updates(updates).Error
}
