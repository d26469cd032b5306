package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"fxmesh/logger"
)

// BinanceProvider 基于 Binance 行情接口的数据提供者，带本地缓存与限速
type BinanceProvider struct {
	client  *binance.Client
	cache   *Cache
	limiter *rate.Limiter
}

// BinanceConfig Binance 数据源配置
type BinanceConfig struct {
	APIKey         string
	SecretKey      string
	CacheDir       string
	RequestsPerSec float64
}

// NewBinanceProvider 创建 Binance 数据提供者
func NewBinanceProvider(cfg *BinanceConfig) *BinanceProvider {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	return &BinanceProvider{
		client:  binance.NewClient(cfg.APIKey, cfg.SecretKey),
		cache:   NewCache(cfg.CacheDir),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchBars 获取覆盖 [from − bufferBars×周期, to + bufferBars×周期] 的K线，
// 优先读取本地缓存。
func (p *BinanceProvider) FetchBars(ctx context.Context, symbol, timeframe string, from, to time.Time, bufferBars int) ([]Bar, error) {
	step, err := TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	start := from.Add(-time.Duration(bufferBars) * step)
	end := to.Add(time.Duration(bufferBars) * step)

	// 1. 检查缓存
	if bars, err := p.cache.Load(symbol, timeframe, start, end); err == nil && len(bars) > 0 {
		logger.Debug("✅ 从缓存加载: %s %s (%d 根K线)", symbol, timeframe, len(bars))
		return bars, nil
	}

	// 2. 从 Binance 分批下载
	logger.Info("⬇️ 下载K线: %s %s (%s 至 %s)",
		symbol, timeframe,
		start.UTC().Format("2006-01-02 15:04"),
		end.UTC().Format("2006-01-02 15:04"))

	bars, err := p.fetchRange(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}

	// 3. 写入缓存
	if len(bars) > 0 {
		if err := p.cache.Save(symbol, timeframe, start, end, bars); err != nil {
			logger.Warn("⚠️ K线缓存写入失败: %v", err)
		}
	}

	return bars, nil
}

// fetchRange 分批下载K线（Binance 单次最多 1000 根）
func (p *BinanceProvider) fetchRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Bar, error) {
	step, err := TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	allBars := make([]Bar, 0)
	currentStart := start
	batchNum := 0

	for currentStart.Before(end) {
		batchNum++

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(currentStart.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(1000).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取第 %d 批K线失败: %w", batchNum, err)
		}

		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bar, err := parseKline(k)
			if err != nil {
				return nil, err
			}
			// 去掉与上一批重叠的K线
			if len(allBars) > 0 && !bar.Timestamp.After(allBars[len(allBars)-1].Timestamp) {
				continue
			}
			allBars = append(allBars, bar)
		}

		lastOpen := time.UnixMilli(klines[len(klines)-1].OpenTime).UTC()
		next := lastOpen.Add(step)
		if !next.After(currentStart) {
			break
		}
		currentStart = next
	}

	return allBars, nil
}

// parseKline 转换 Binance K线
func parseKline(k *binance.Kline) (Bar, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("解析开盘价失败: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("解析最高价失败: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("解析最低价失败: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("解析收盘价失败: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("解析成交量失败: %w", err)
	}

	return Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
