package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	// 日志级别
	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	// 打开数据库
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// 自动迁移
	if err := db.AutoMigrate(
		&User{},
		&Algorithm{},
		&Symbol{},
		&Schedule{},
		&Subscription{},
		&Backtest{},
		&Position{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

// ErrNotFound 记录不存在
var ErrNotFound = gorm.ErrRecordNotFound

// IsNotFound 判断是否为记录不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ---- 用户 ----

// CreateUser 创建用户
func (g *GormDatabase) CreateUser(ctx context.Context, user *User) error {
	return g.db.WithContext(ctx).Create(user).Error
}

// GetUserByID 根据 ID 获取用户
func (g *GormDatabase) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := g.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取用户
func (g *GormDatabase) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := g.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers 获取用户列表
func (g *GormDatabase) ListUsers(ctx context.Context, limit, offset int) ([]*User, error) {
	query := g.db.WithContext(ctx).Model(&User{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var users []*User
	if err := query.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser 更新用户
func (g *GormDatabase) UpdateUser(ctx context.Context, user *User) error {
	return g.db.WithContext(ctx).Save(user).Error
}

// DeleteUser 删除用户
func (g *GormDatabase) DeleteUser(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Delete(&User{}, id).Error
}

// ---- 算法 ----

// CreateAlgorithm 创建算法
func (g *GormDatabase) CreateAlgorithm(ctx context.Context, algo *Algorithm) error {
	return g.db.WithContext(ctx).Create(algo).Error
}

// GetAlgorithm 根据 ID 获取算法
func (g *GormDatabase) GetAlgorithm(ctx context.Context, id uint) (*Algorithm, error) {
	var algo Algorithm
	if err := g.db.WithContext(ctx).First(&algo, id).Error; err != nil {
		return nil, err
	}
	return &algo, nil
}

// ListAlgorithms 获取算法列表
func (g *GormDatabase) ListAlgorithms(ctx context.Context, status string, limit, offset int) ([]*Algorithm, error) {
	query := g.db.WithContext(ctx).Model(&Algorithm{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var algos []*Algorithm
	if err := query.Find(&algos).Error; err != nil {
		return nil, err
	}
	return algos, nil
}

// UpdateAlgorithm 更新算法
func (g *GormDatabase) UpdateAlgorithm(ctx context.Context, algo *Algorithm) error {
	return g.db.WithContext(ctx).Save(algo).Error
}

// DeleteAlgorithm 删除算法
func (g *GormDatabase) DeleteAlgorithm(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Delete(&Algorithm{}, id).Error
}

// ---- 交易对 ----

// CreateSymbol 创建交易对
func (g *GormDatabase) CreateSymbol(ctx context.Context, symbol *Symbol) error {
	return g.db.WithContext(ctx).Create(symbol).Error
}

// GetSymbol 根据 ID 获取交易对
func (g *GormDatabase) GetSymbol(ctx context.Context, id uint) (*Symbol, error) {
	var symbol Symbol
	if err := g.db.WithContext(ctx).First(&symbol, id).Error; err != nil {
		return nil, err
	}
	return &symbol, nil
}

// ListSymbols 获取交易对列表
func (g *GormDatabase) ListSymbols(ctx context.Context) ([]*Symbol, error) {
	var symbols []*Symbol
	if err := g.db.WithContext(ctx).Order("pair ASC").Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// UpdateSymbol 更新交易对
func (g *GormDatabase) UpdateSymbol(ctx context.Context, symbol *Symbol) error {
	return g.db.WithContext(ctx).Save(symbol).Error
}

// DeleteSymbol 删除交易对
func (g *GormDatabase) DeleteSymbol(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Delete(&Symbol{}, id).Error
}

// ---- 调度 ----

// CreateSchedule 创建调度
func (g *GormDatabase) CreateSchedule(ctx context.Context, schedule *Schedule) error {
	return g.db.WithContext(ctx).Create(schedule).Error
}

// GetSchedule 根据 ID 获取调度
func (g *GormDatabase) GetSchedule(ctx context.Context, id uint) (*Schedule, error) {
	var schedule Schedule
	if err := g.db.WithContext(ctx).First(&schedule, id).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListSchedules 获取调度列表
func (g *GormDatabase) ListSchedules(ctx context.Context, status string) ([]*Schedule, error) {
	query := g.db.WithContext(ctx).Model(&Schedule{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var schedules []*Schedule
	if err := query.Order("created_at DESC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// UpdateSchedule 更新调度
func (g *GormDatabase) UpdateSchedule(ctx context.Context, schedule *Schedule) error {
	return g.db.WithContext(ctx).Save(schedule).Error
}

// DeleteSchedule 删除调度
func (g *GormDatabase) DeleteSchedule(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Delete(&Schedule{}, id).Error
}

// ---- 订阅 ----

// CreateSubscription 创建订阅
func (g *GormDatabase) CreateSubscription(ctx context.Context, sub *Subscription) error {
	return g.db.WithContext(ctx).Create(sub).Error
}

// ListSubscriptionsByAlgorithm 获取算法的活跃订阅
func (g *GormDatabase) ListSubscriptionsByAlgorithm(ctx context.Context, algorithmID uint) ([]*Subscription, error) {
	var subs []*Subscription
	err := g.db.WithContext(ctx).
		Where("algorithm_id = ? AND active = ?", algorithmID, true).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// ListSubscriptionsByUser 获取用户的订阅
func (g *GormDatabase) ListSubscriptionsByUser(ctx context.Context, userID uint) ([]*Subscription, error) {
	var subs []*Subscription
	err := g.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// DeleteSubscription 删除订阅
func (g *GormDatabase) DeleteSubscription(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Delete(&Subscription{}, id).Error
}

// ---- 回测任务 ----

// CreateBacktest 创建回测任务（初始状态 running）
func (g *GormDatabase) CreateBacktest(ctx context.Context, bt *Backtest) error {
	if bt.Status == "" {
		bt.Status = BacktestStatusRunning
	}
	return g.db.WithContext(ctx).Create(bt).Error
}

// GetBacktest 根据 ID 获取回测任务
func (g *GormDatabase) GetBacktest(ctx context.Context, id uint) (*Backtest, error) {
	var bt Backtest
	if err := g.db.WithContext(ctx).First(&bt, id).Error; err != nil {
		return nil, err
	}
	return &bt, nil
}

// ListBacktests 获取回测任务列表
func (g *GormDatabase) ListBacktests(ctx context.Context, filter *BacktestFilter) ([]*Backtest, error) {
	query := g.db.WithContext(ctx).Model(&Backtest{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AlgorithmID > 0 {
		query = query.Where("algorithm_id = ?", filter.AlgorithmID)
	}
	if filter.SymbolID > 0 {
		query = query.Where("symbol_id = ?", filter.SymbolID)
	}

	query = query.Order("created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var backtests []*Backtest
	if err := query.Find(&backtests).Error; err != nil {
		return nil, err
	}
	return backtests, nil
}

// ListBacktestsByAlgorithm 获取算法的回测任务
func (g *GormDatabase) ListBacktestsByAlgorithm(ctx context.Context, algorithmID uint) ([]*Backtest, error) {
	var backtests []*Backtest
	err := g.db.WithContext(ctx).
		Where("algorithm_id = ?", algorithmID).
		Order("created_at DESC").
		Find(&backtests).Error
	if err != nil {
		return nil, err
	}
	return backtests, nil
}

// CompleteBacktest 写入终态结果。条件更新保证 running→completed 只发生一次：
// 状态已被变更时不写入并返回 false。
func (g *GormDatabase) CompleteBacktest(ctx context.Context, id uint, result *BacktestResult) (bool, error) {
	res := g.db.WithContext(ctx).Model(&Backtest{}).
		Where("id = ? AND status = ?", id, BacktestStatusRunning).
		Updates(map[string]interface{}{
			"status":                           BacktestStatusCompleted,
			"status_message":                   "",
			"result_total_trades":              result.TotalTrades,
			"result_win":                       result.Win,
			"result_loss":                      result.Loss,
			"result_percentage_winning_trades": result.PercentageWinningTrades,
			"result_percentage_losing_trades":  result.PercentageLosingTrades,
			"result_profit_factor":             result.ProfitFactor,
			"result_expected_payoff":           result.ExpectedPayoff,
			"result_net_pips":                  result.NetPips,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FailBacktest 标记回测失败，同样以 running 状态为前置条件。
func (g *GormDatabase) FailBacktest(ctx context.Context, id uint, message string) (bool, error) {
	res := g.db.WithContext(ctx).Model(&Backtest{}).
		Where("id = ? AND status = ?", id, BacktestStatusRunning).
		Updates(map[string]interface{}{
			"status":         BacktestStatusFailed,
			"status_message": message,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteBacktest 删除回测任务
func (g *GormDatabase) DeleteBacktest(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Delete(&Backtest{}, id).Error
}

// ---- 持仓记录 ----

// UpsertPositions 按自然键 upsert 持仓记录。
// 持仓记录不可变，冲突时不更新（DO NOTHING），因此重复写入是幂等的。
// 返回新插入与已存在的记录数。
func (g *GormDatabase) UpsertPositions(ctx context.Context, positions []*Position) (int, int, error) {
	if len(positions) == 0 {
		return 0, 0, nil
	}

	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol_pair"},
			{Name: "algorithm_id"},
			{Name: "timeframe"},
			{Name: "operation"},
			{Name: "outcome"},
			{Name: "open_timestamp"},
			{Name: "close_timestamp"},
			{Name: "entry_price"},
			{Name: "close_price"},
		},
		DoNothing: true,
	}).CreateInBatches(positions, 100)
	if res.Error != nil {
		return 0, 0, res.Error
	}

	inserted := int(res.RowsAffected)
	existing := len(positions) - inserted
	return inserted, existing, nil
}

// ListPositions 获取持仓记录
func (g *GormDatabase) ListPositions(ctx context.Context, filter *PositionFilter) ([]*Position, error) {
	query := g.db.WithContext(ctx).Model(&Position{})

	if filter.BacktestID > 0 {
		query = query.Where("backtest_id = ?", filter.BacktestID)
	}
	if filter.OpenFrom != nil {
		query = query.Where("open_timestamp >= ?", filter.OpenFrom)
	}
	if filter.CloseTo != nil {
		query = query.Where("close_timestamp <= ?", filter.CloseTo)
	}

	query = query.Order("open_timestamp ASC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var positions []*Position
	if err := query.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// DeletePositionsByBacktest 删除回测任务的全部持仓记录
func (g *GormDatabase) DeletePositionsByBacktest(ctx context.Context, backtestID uint) error {
	return g.db.WithContext(ctx).Where("backtest_id = ?", backtestID).Delete(&Position{}).Error
}

// Ping 健康检查
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
