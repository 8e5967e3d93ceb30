package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// userModel は users テーブルの行です。
// Username は外部IdPだけのユーザーでは NULL になり、一意制約の対象外です。
type userModel struct {
	ID         string  `gorm:"primaryKey;type:varchar(36)"`
	Username   *string `gorm:"uniqueIndex"`
	Name       string
	Email      string
	Password   string
	GoogleID   string `gorm:"index"`
	FacebookID string `gorm:"index"`
	Secret     string
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (userModel) TableName() string {
	return "users"
}

// GormStore は GORM 経由で SQLite / PostgreSQL に保存する Store です。
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite は SQLite ファイルを開いてスキーマを適用します。
func OpenSQLite(dsn string) (*GormStore, error) {
	return openGorm(sqlite.Open(dsn))
}

// OpenPostgres は PostgreSQL に接続してスキーマを適用します。
func OpenPostgres(dsn string) (*GormStore, error) {
	return openGorm(postgres.Open(dsn))
}

func openGorm(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(os.Stderr),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewGormStore(db)
}

// newGormLogger は警告以上だけを出すロガーです。
// 検索結果が無いのは通常の分岐なので record not found は出力しません。
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// NewGormStore は既存の接続から GormStore を作成します。
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&userModel{}); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return &GormStore{db: db}, nil
}

// DB はセッションストアなど同じ接続を使う処理のために *gorm.DB を返します。
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	m := toModel(u)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	u.CreatedAt = m.CreatedAt
	u.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "username = ?", username)
}

func (s *GormStore) FindOrCreateByProvider(ctx context.Context, p Provider, providerID string, seed *User) (*User, bool, error) {
	if err := validateProvider(p, providerID); err != nil {
		return nil, false, err
	}

	attrs := seed.clone()
	if attrs == nil {
		attrs = &User{}
	}
	attrs.setProviderID(p, providerID)
	if attrs.ID == "" {
		attrs.ID = uuid.NewString()
	}

	var m userModel
	res := s.db.WithContext(ctx).
		Where(providerKey(p)+" = ?", providerID).
		Attrs(toModel(attrs)).
		FirstOrCreate(&m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return fromModel(&m), res.RowsAffected > 0, nil
}

func (s *GormStore) Save(ctx context.Context, u *User) error {
	m := toModel(u)
	m.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", u.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	u.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *GormStore) ListWithSecrets(ctx context.Context) ([]*User, error) {
	var rows []userModel
	if err := s.db.WithContext(ctx).
		Where("secret <> ?", "").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(rows))
	for i := range rows {
		out = append(out, fromModel(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) first(ctx context.Context, query string, args ...any) (*User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromModel(&m), nil
}

func toModel(u *User) *userModel {
	var username *string
	if u.Username != "" {
		name := u.Username
		username = &name
	}
	return &userModel{
		ID:         u.ID,
		Username:   username,
		Name:       u.Name,
		Email:      u.Email,
		Password:   u.Password,
		GoogleID:   u.GoogleID,
		FacebookID: u.FacebookID,
		Secret:     u.Secret,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func fromModel(m *userModel) *User {
	var username string
	if m.Username != nil {
		username = *m.Username
	}
	return &User{
		ID:         m.ID,
		Username:   username,
		Name:       m.Name,
		Email:      m.Email,
		Password:   m.Password,
		GoogleID:   m.GoogleID,
		FacebookID: m.FacebookID,
		Secret:     m.Secret,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
