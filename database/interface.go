package database

import (
	"context"
	"time"
)

// 实体状态与枚举值
const (
	// 回测任务状态
	BacktestStatusRunning   = "running"
	BacktestStatusCompleted = "completed"
	BacktestStatusFailed    = "failed"

	// 算法/调度状态
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPaused   = "paused"
	StatusDeleted  = "deleted"

	// 交易方向
	OperationBuy  = "buy"
	OperationSell = "sell"

	// 平仓结果
	OutcomeWin  = "win"
	OutcomeLoss = "loss"

	// 用户角色
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Database 数据库接口
type Database interface {
	// 用户
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id uint) error

	// 算法
	CreateAlgorithm(ctx context.Context, algo *Algorithm) error
	GetAlgorithm(ctx context.Context, id uint) (*Algorithm, error)
	ListAlgorithms(ctx context.Context, status string, limit, offset int) ([]*Algorithm, error)
	UpdateAlgorithm(ctx context.Context, algo *Algorithm) error
	DeleteAlgorithm(ctx context.Context, id uint) error

	// 交易对
	CreateSymbol(ctx context.Context, symbol *Symbol) error
	GetSymbol(ctx context.Context, id uint) (*Symbol, error)
	ListSymbols(ctx context.Context) ([]*Symbol, error)
	UpdateSymbol(ctx context.Context, symbol *Symbol) error
	DeleteSymbol(ctx context.Context, id uint) error

	// 调度
	CreateSchedule(ctx context.Context, schedule *Schedule) error
	GetSchedule(ctx context.Context, id uint) (*Schedule, error)
	ListSchedules(ctx context.Context, status string) ([]*Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *Schedule) error
	DeleteSchedule(ctx context.Context, id uint) error

	// 订阅
	CreateSubscription(ctx context.Context, sub *Subscription) error
	ListSubscriptionsByAlgorithm(ctx context.Context, algorithmID uint) ([]*Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uint) ([]*Subscription, error)
	DeleteSubscription(ctx context.Context, id uint) error

	// 回测任务
	CreateBacktest(ctx context.Context, bt *Backtest) error
	GetBacktest(ctx context.Context, id uint) (*Backtest, error)
	ListBacktests(ctx context.Context, filter *BacktestFilter) ([]*Backtest, error)
	ListBacktestsByAlgorithm(ctx context.Context, algorithmID uint) ([]*Backtest, error)
	// CompleteBacktest 仅当任务仍处于 running 状态时写入终态结果，
	// 返回 false 表示状态已被其他写入者抢先变更。
	CompleteBacktest(ctx context.Context, id uint, result *BacktestResult) (bool, error)
	// FailBacktest 仅当任务仍处于 running 状态时标记失败，语义同上。
	FailBacktest(ctx context.Context, id uint, message string) (bool, error)
	DeleteBacktest(ctx context.Context, id uint) error

	// 持仓记录（回测产出，按自然键去重）
	UpsertPositions(ctx context.Context, positions []*Position) (inserted int, existing int, err error)
	ListPositions(ctx context.Context, filter *PositionFilter) ([]*Position, error)
	DeletePositionsByBacktest(ctx context.Context, backtestID uint) error

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// User 用户
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50" json:"username"`
	PasswordHash string    `gorm:"size:100" json:"-"`
	Role         string    `gorm:"size:20" json:"role"` // admin, user
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Algorithm 策略算法（脚本以 base64 编码存储）
type Algorithm struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"size:100" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Script      string    `gorm:"type:text" json:"script"`
	Language    string    `gorm:"size:20" json:"language"` // javascript, python
	WindowSize  int       `json:"window_size"`             // 每次评估输入的K线数量
	Status      string    `gorm:"index;size:20" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Symbol 交易对
type Symbol struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Pair      string    `gorm:"uniqueIndex;size:20" json:"pair"`
	LongName  string    `gorm:"size:100" json:"long_name"`
	PipScale  float64   `json:"pip_scale"` // 点值换算系数，0 表示使用全局默认
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Schedule 实时评估调度
type Schedule struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"size:100" json:"name"`
	SymbolID     uint      `gorm:"index" json:"symbol_id"`
	AlgorithmID  uint      `gorm:"index" json:"algorithm_id"`
	Timeframe    string    `gorm:"size:10" json:"timeframe"`
	CandleNumber int       `json:"candle_number"` // 每次评估取的K线数量
	Status       string    `gorm:"index;size:20" json:"status"` // active, paused, deleted
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subscription 用户对算法实时信号的订阅
type Subscription struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"index" json:"user_id"`
	AlgorithmID uint      `gorm:"index" json:"algorithm_id"`
	TargetURL   string    `gorm:"size:255" json:"target_url"` // 信号下发的 webhook 地址
	Active      bool      `gorm:"index" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BacktestResult 回测汇总指标
type BacktestResult struct {
	TotalTrades             int     `json:"total_trades"`
	Win                     int     `json:"win"`
	Loss                    int     `json:"loss"`
	PercentageWinningTrades float64 `json:"percentage_winning_trades"`
	PercentageLosingTrades  float64 `json:"percentage_losing_trades"`
	ProfitFactor            float64 `json:"profit_factor"`
	ExpectedPayoff          float64 `json:"expected_payoff"`
	NetPips                 float64 `json:"net_pips"`
}

// Backtest 回测任务（输入 + 状态 + 汇总结果）
type Backtest struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SymbolID    uint      `gorm:"index" json:"symbol_id"`
	AlgorithmID uint      `gorm:"index" json:"algorithm_id"`
	Timeframe   string    `gorm:"size:10" json:"timeframe"`
	DateFrom    time.Time `json:"date_from"`
	DateTo      time.Time `json:"date_to"`
	WindowSize  int       `json:"window_size"`
	CloseMethod string    `gorm:"size:20" json:"close_method"` // fixed_tp_sl, manual, opposite_signal

	Status        string `gorm:"index;size:20" json:"status"` // running, completed, failed
	StatusMessage string `gorm:"type:text" json:"status_message"`

	// 汇总结果（completed 时有效）
	Result BacktestResult `gorm:"embedded;embeddedPrefix:result_" json:"result"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position 回测持仓记录。
// 自然键 (symbol_pair, algorithm_id, timeframe, operation, outcome,
// open_timestamp, close_timestamp, entry_price, close_price) 上建唯一索引，
// 重复回测通过 upsert 去重。
type Position struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BacktestID     uint      `gorm:"index" json:"backtest_id"`
	SymbolPair     string    `gorm:"uniqueIndex:idx_position_natural;size:20" json:"symbol_pair"`
	AlgorithmID    uint      `gorm:"uniqueIndex:idx_position_natural" json:"algorithm_id"`
	Timeframe      string    `gorm:"uniqueIndex:idx_position_natural;size:10" json:"timeframe"`
	Operation      string    `gorm:"uniqueIndex:idx_position_natural;size:10" json:"operation"`
	Outcome        string    `gorm:"uniqueIndex:idx_position_natural;size:10" json:"outcome"`
	OpenTimestamp  time.Time `gorm:"uniqueIndex:idx_position_natural" json:"open_timestamp"`
	CloseTimestamp time.Time `gorm:"uniqueIndex:idx_position_natural" json:"close_timestamp"`
	EntryPrice     float64   `gorm:"uniqueIndex:idx_position_natural" json:"entry_price"`
	ClosePrice     float64   `gorm:"uniqueIndex:idx_position_natural" json:"close_price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	Pips           float64   `json:"pips"`
	CreatedAt      time.Time `json:"created_at"`
}

// 过滤器

// BacktestFilter 回测任务过滤器
type BacktestFilter struct {
	Status      string
	AlgorithmID uint
	SymbolID    uint
	Limit       int
	Offset      int
}

// PositionFilter 持仓记录过滤器
type PositionFilter struct {
	BacktestID uint
	OpenFrom   *time.Time
	CloseTo    *time.Time
	Limit      int
	Offset     int
}
