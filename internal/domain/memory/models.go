// Package memory 会话记忆与账号持久化，SQLite存储。
package memory

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation 会话消息记录
type Conversation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index;not null" json:"session_id"`
	Role      string    `gorm:"not null" json:"role"` // user 或 assistant
	Content   string    `gorm:"type:text;not null" json:"content"`
	Emotion   string    `gorm:"default:'neutral'" json:"emotion"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

// UserInfo 按会话维度记录的用户画像
type UserInfo struct {
	SessionID       string         `gorm:"primaryKey" json:"session_id"`
	Name            string         `json:"name"`
	Preferences     datatypes.JSON `json:"preferences"`
	ContextData     datatypes.JSON `json:"context_data"`
	LastInteraction time.Time      `json:"last_interaction"`
}

// TableName 指定表名
func (UserInfo) TableName() string {
	return "user_info"
}

// User 注册账号
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Settings     datatypes.JSON `json:"settings"`
	CreatedAt    time.Time      `json:"created_at"`
	LastLogin    *time.Time     `json:"last_login"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// CustomCharacter 用户自定义角色
type CustomCharacter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Name      string    `gorm:"not null" json:"name"`
	Prompt    string    `gorm:"type:text" json:"prompt"`
	VoiceID   string    `json:"voice_id"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (CustomCharacter) TableName() string {
	return "characters"
}
