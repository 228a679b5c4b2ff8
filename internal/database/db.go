package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/userauth"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/alex65536/syllabus/internal/util/timeutil"
	"github.com/alex65536/syllabus/internal/webui"
	"github.com/gorilla/sessions"
	"github.com/wader/gormstore/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Options struct {
	Path          string        `toml:"path"`
	Debug         bool          `toml:"debug"`
	SlowThreshold time.Duration `toml:"slow-threshold"`
	BusyTimeout   time.Duration `toml:"busy-timeout"`
	UseWAL        bool          `toml:"use-wal"`
}

func (o *Options) FillDefaults() {
	if o.Path == "" {
		o.Path = "syllabus.db"
	}
	if o.SlowThreshold == 0 {
		o.SlowThreshold = 200 * time.Millisecond
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 1 * time.Minute
	}
}

type DB struct {
	db  *gorm.DB
	log *slog.Logger
}

var (
	_ userauth.DB               = (*DB)(nil)
	_ account.Profiles          = (*DB)(nil)
	_ webui.SessionStoreFactory = (*DB)(nil)
)

func (d *DB) Close() {
	db, err := d.db.DB()
	if err != nil {
		d.log.Error("could not get underlying db", slogx.Err(err))
		return
	}
	err = db.Close()
	if err != nil {
		d.log.Error("could not close db", slogx.Err(err))
	}
}

func buildPath(o Options) string {
	var params []string
	if o.UseWAL {
		params = append(params, "_journal_mode=WAL")
		params = append(params, "_synchronous=NORMAL")
	}
	params = append(params, fmt.Sprintf("_busy_timeout=%v", o.BusyTimeout.Milliseconds()))
	params = append(params, "_foreign_keys=1")
	paramStr := strings.Join(params, "&")
	if paramStr == "" {
		return o.Path
	}
	sep := "?"
	if strings.Contains(o.Path, "?") {
		sep = "&"
	}
	return o.Path + sep + paramStr
}

func New(log *slog.Logger, o Options) (*DB, error) {
	o.FillDefaults()

	log.Info("opening db")
	db, err := gorm.Open(sqlite.Open(buildPath(o)), &gorm.Config{
		Logger: Logger(log, o),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	d := &DB{db: db, log: log}

	log.Info("migrating db")
	if err := db.AutoMigrate(models...); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	log.Info("db opened")
	return d, nil
}

func (d *DB) CreateUser(ctx context.Context, user userauth.User) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var result []userauth.User
		err := tx.Where("email = ?", user.Email).Limit(1).Find(&result).Error
		if err != nil {
			return fmt.Errorf("search for user: %w", err)
		}
		if len(result) != 0 {
			return userauth.ErrUserAlreadyExists
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

func (d *DB) GetUser(ctx context.Context, userID string) (userauth.User, error) {
	var users []userauth.User
	err := d.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&users).Error
	if err != nil {
		return userauth.User{}, fmt.Errorf("get user: %w", err)
	}
	if len(users) == 0 {
		return userauth.User{}, userauth.ErrUserNotFound
	}
	return users[0], nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (userauth.User, error) {
	var users []userauth.User
	err := d.db.WithContext(ctx).Where("email = ?", email).Limit(1).Find(&users).Error
	if err != nil {
		return userauth.User{}, fmt.Errorf("get user: %w", err)
	}
	if len(users) == 0 {
		return userauth.User{}, userauth.ErrUserNotFound
	}
	return users[0], nil
}

func (d *DB) ListUsers(ctx context.Context) ([]userauth.User, error) {
	var users []userauth.User
	err := d.db.WithContext(ctx).Order("created_at").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	return users, nil
}

func (d *DB) UpdateUser(ctx context.Context, user userauth.User) error {
	err := d.db.WithContext(ctx).Omit("Tokens").Save(&user).Error
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (d *DB) CreateTokens(ctx context.Context, tokens ...userauth.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).Create(&tokens).Error
	if err != nil {
		return fmt.Errorf("create tokens: %w", err)
	}
	return nil
}

func (d *DB) GetToken(ctx context.Context, tokenHash string, now timeutil.UTCTime) (userauth.Token, error) {
	var toks []userauth.Token
	err := d.db.WithContext(ctx).
		Where("hash = ? AND expires_at >= ?", tokenHash, now).
		Limit(1).
		Find(&toks).Error
	if err != nil {
		return userauth.Token{}, fmt.Errorf("get token: %w", err)
	}
	if len(toks) == 0 {
		return userauth.Token{}, userauth.ErrTokenNotFound
	}
	return toks[0], nil
}

func (d *DB) RotateSession(ctx context.Context, refreshHash string, tokens ...userauth.Token) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old userauth.Token
		err := tx.Where("hash = ?", refreshHash).First(&old).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return userauth.ErrTokenNotFound
			}
			return fmt.Errorf("find refresh token: %w", err)
		}
		delTx := tx.Where("session_id = ?", old.SessionID).Delete(&userauth.Token{})
		if err := delTx.Error; err != nil {
			return fmt.Errorf("delete old tokens: %w", err)
		}
		if delTx.RowsAffected == 0 {
			return userauth.ErrTokenNotFound
		}
		if len(tokens) != 0 {
			if err := tx.Create(&tokens).Error; err != nil {
				return fmt.Errorf("create tokens: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	err := d.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&userauth.Token{}).Error
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (d *DB) PruneTokens(ctx context.Context, now timeutil.UTCTime) error {
	err := d.db.WithContext(ctx).Delete(&userauth.Token{}, "expires_at < ?", now).Error
	if err != nil {
		return fmt.Errorf("prune tokens: %w", err)
	}
	return nil
}

func (d *DB) GetProfile(ctx context.Context, sess *account.Session) (account.Profile, error) {
	var profiles []Profile
	err := d.db.WithContext(ctx).Where("id = ?", sess.User.ID).Limit(1).Find(&profiles).Error
	if err != nil {
		return account.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if len(profiles) == 0 {
		return account.Profile{}, account.ErrProfileNotFound
	}
	return profiles[0].toAccount(), nil
}

// UsernameTaken reports whether some profile already uses the username.
func (d *DB) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&Profile{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count profiles: %w", err)
	}
	return count != 0, nil
}

func (d *DB) SaveProfile(ctx context.Context, profile account.Profile) error {
	p := profileFromAccount(profile)
	p.UpdatedAt = timeutil.NowUTC()
	err := d.db.WithContext(ctx).Save(&p).Error
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (d *DB) NewSessionStore(ctx context.Context, opts webui.SessionOptions) sessions.Store {
	s := gormstore.New(d.db, opts.KeyPairs()...)
	go s.PeriodicCleanup(opts.CleanupInterval, ctx.Done())
	return s
}
