package users

import "time"

// Record tracks a GitHub user seen at the OAuth callback. It is bookkeeping
// only; authentication never reads it back.
type Record struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:64;not null"`
	Handle      string    `gorm:"column:handle;size:190;not null;index"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	LastLoginAt time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user records.
func (Record) TableName() string {
	return "users"
}
