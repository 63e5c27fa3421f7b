package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/lms/internal/config"
	"github.com/user/lms/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ReadyState 连接状态
type ReadyState string

const (
	StateDisconnected ReadyState = "DISCONNECTED"
	StateConnecting   ReadyState = "CONNECTING"
	StateConnected    ReadyState = "CONNECTED"
)

// ConnectionStatus 健康检查展示的连接信息
type ConnectionStatus struct {
	IsConnected bool       `json:"isConnected"`
	ReadyState  ReadyState `json:"readyState"`
	RetryCount  int        `json:"retryCount"`
	Host        string     `json:"host"`
	Name        string     `json:"name"`
}

// Dialer 打开数据库，测试中可替换
type Dialer func(dsn string, cfg *gorm.Config) (*gorm.DB, error)

// PostgresDialer 默认的 postgres 连接方式
func PostgresDialer(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), cfg)
}

// Connection 数据库连接管理，由 main 创建并显式传递
type Connection struct {
	dsn    string
	policy config.DBConfig
	debug  bool
	dial   Dialer
	log    zerolog.Logger

	mu         sync.RWMutex
	db         *gorm.DB
	state      ReadyState
	retryCount int
}

// NewConnection 创建连接管理器，不会立即连接
func NewConnection(dsn string, policy config.DBConfig, debug bool, log zerolog.Logger) *Connection {
	return &Connection{
		dsn:    dsn,
		policy: policy,
		debug:  debug,
		dial:   PostgresDialer,
		log:    log,
		state:  StateDisconnected,
	}
}

// WithDialer 替换连接方式
func (c *Connection) WithDialer(d Dialer) *Connection {
	c.dial = d
	return c
}

// Connect 启动时连接，失败按固定间隔重试
func (c *Connection) Connect(ctx context.Context) (*gorm.DB, error) {
	maxRetries := c.policy.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		c.setState(StateConnecting, attempt-1)

		db, err := c.open(ctx)
		if err == nil {
			c.mu.Lock()
			c.db = db
			c.state = StateConnected
			c.mu.Unlock()
			c.log.Info().Str("host", c.host()).Str("database", c.name()).Msg("database connected")
			return db, nil
		}

		lastErr = err
		c.setState(StateDisconnected, attempt)
		c.log.Error().Err(err).Int("attempt", attempt).Int("max", maxRetries).Msg("database connection failed")

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.policy.RetryInterval):
		}
	}

	return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Connection) open(ctx context.Context) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if c.debug {
		logLevel = gormlogger.Info
	}

	db, err := c.dial(c.dsn, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if c.policy.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.policy.MaxOpenConns)
	}
	if c.policy.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.policy.MaxIdleConns)
	}
	if c.policy.IdleTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(c.policy.IdleTimeout)
	}

	timeout := c.policy.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (c *Connection) setState(state ReadyState, retries int) {
	c.mu.Lock()
	c.state = state
	c.retryCount = retries
	c.mu.Unlock()
}

// DB 当前连接，未连接时为 nil
func (c *Connection) DB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Ping 检查连接并更新状态
func (c *Connection) Ping(ctx context.Context) error {
	db := c.DB()
	if db == nil {
		return errors.New("database not connected")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	return nil
}

// Status 连接状态快照
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionStatus{
		IsConnected: c.state == StateConnected,
		ReadyState:  c.state,
		RetryCount:  c.retryCount,
		Host:        c.host(),
		Name:        c.name(),
	}
}

// Close 关闭连接池
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	c.state = StateDisconnected
	return sqlDB.Close()
}

func (c *Connection) host() string {
	if u, err := url.Parse(c.dsn); err == nil && u.Host != "" {
		return u.Host
	}
	return ""
}

func (c *Connection) name() string {
	if u, err := url.Parse(c.dsn); err == nil && len(u.Path) > 1 {
		return u.Path[1:]
	}
	return ""
}

// Migrate 自动建表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// Repositories 仓库集合
type Repositories struct {
	DB       *gorm.DB
	User     *UserRepository
	Course   *CourseRepository
	Lecture  *LectureRepository
	Progress *ProgressRepository
	Purchase *PurchaseRepository
	Rating   *RatingRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:       db,
		User:     NewUserRepository(db),
		Course:   NewCourseRepository(db),
		Lecture:  NewLectureRepository(db),
		Progress: NewProgressRepository(db),
		Purchase: NewPurchaseRepository(db),
		Rating:   NewRatingRepository(db),
	}
}

// WithContext 绑定请求上下文
func (r *Repositories) WithContext(ctx context.Context) *Repositories {
	return NewRepositories(r.DB.WithContext(ctx))
}

// WithTx 绑定到事务的仓库集合
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(tx)
}

// Transaction 在事务中执行，fn 返回错误时回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
