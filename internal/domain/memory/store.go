package memory

import (
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"companion-server-go/internal/domain/chat/emotion"
	"companion-server-go/internal/platform/config"
	platformerrors "companion-server-go/internal/platform/errors"
	"companion-server-go/internal/platform/logging"
)

const defaultHistoryLimit = 10

// Store SQLite记忆存储
type Store struct {
	db           *gorm.DB
	logger       *logging.Logger
	historyLimit int
}

// Open 打开数据库并完成建表迁移
func Open(cfg config.MemoryConfig, logger *logging.Logger) (*Store, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "companion.db"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "打开数据库失败", err)
	}

	if err := db.AutoMigrate(&Conversation{}, &UserInfo{}, &User{}, &CustomCharacter{}); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "migrate", "数据库迁移失败", err)
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	logger.InfoTag("记忆", "数据库已就绪: %s", dsn)
	return &Store{db: db, logger: logger, historyLimit: limit}, nil
}

// AppendMessage 追加一条会话消息
func (s *Store) AppendMessage(sessionID, role, content string, emo emotion.Label) error {
	if content == "" {
		return nil
	}
	record := Conversation{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Emotion:   string(emo),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "append", "保存会话消息失败", err)
	}
	return nil
}

// History 返回最近的消息，按时间正序
func (s *Store) History(sessionID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	var rows []Conversation
	err := s.db.Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "history", "读取会话历史失败", err)
	}
	// 倒序查出后翻转为时间正序
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// UpsertUserInfo 更新会话维度的用户画像
func (s *Store) UpsertUserInfo(sessionID, name string, preferences map[string]any) error {
	prefs, err := sonic.Marshal(preferences)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "upsert_user_info", "序列化偏好失败", err)
	}
	info := UserInfo{
		SessionID:       sessionID,
		Name:            name,
		Preferences:     datatypes.JSON(prefs),
		LastInteraction: time.Now(),
	}
	if err := s.db.Save(&info).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "upsert_user_info", "保存用户画像失败", err)
	}
	return nil
}

// GetUserInfo 读取会话维度的用户画像
func (s *Store) GetUserInfo(sessionID string) (*UserInfo, error) {
	var info UserInfo
	err := s.db.First(&info, "session_id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "get_user_info", "读取用户画像失败", err)
	}
	return &info, nil
}

// CreateUser 创建账号
func (s *Store) CreateUser(user *User) error {
	if err := s.db.Create(user).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "create_user", "创建用户失败", err)
	}
	return nil
}

// UserByUsername 按用户名查找账号，不存在时返回 nil
func (s *Store) UserByUsername(username string) (*User, error) {
	var user User
	err := s.db.First(&user, "username = ?", username).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "user_by_username", "查找用户失败", err)
	}
	return &user, nil
}

// UserByID 按ID查找账号，不存在时返回 nil
func (s *Store) UserByID(id uint) (*User, error) {
	var user User
	err := s.db.First(&user, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "user_by_id", "查找用户失败", err)
	}
	return &user, nil
}

// TouchLastLogin 更新最近登录时间
func (s *Store) TouchLastLogin(id uint) error {
	now := time.Now()
	return s.db.Model(&User{}).Where("id = ?", id).Update("last_login", &now).Error
}

// CreateCharacter 创建自定义角色
func (s *Store) CreateCharacter(ch *CustomCharacter) error {
	if err := s.db.Create(ch).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "create_character", "创建角色失败", err)
	}
	return nil
}

// CharactersByUser 列出用户的自定义角色
func (s *Store) CharactersByUser(userID uint) ([]CustomCharacter, error) {
	var rows []CustomCharacter
	if err := s.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "characters_by_user", "读取角色列表失败", err)
	}
	return rows, nil
}

// CharacterByID 按ID查找自定义角色，限定属主
func (s *Store) CharacterByID(userID, id uint) (*CustomCharacter, error) {
	var ch CustomCharacter
	err := s.db.First(&ch, "id = ? AND user_id = ?", id, userID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "character_by_id", "查找角色失败", err)
	}
	return &ch, nil
}

// UpdateCharacter 更新自定义角色
func (s *Store) UpdateCharacter(ch *CustomCharacter) error {
	if err := s.db.Save(ch).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "update_character", "更新角色失败", err)
	}
	return nil
}

// DeleteCharacter 删除自定义角色，限定属主
func (s *Store) DeleteCharacter(userID, id uint) error {
	err := s.db.Delete(&CustomCharacter{}, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "delete_character", "删除角色失败", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
