package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fxmesh/logger"
)

// Cache K线文件缓存（CSV 格式，按 symbol/timeframe/范围 命名）
type Cache struct {
	dir string
}

// NewCache 创建K线缓存
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// key 生成缓存键
func (c *Cache) key(symbol, timeframe string, from, to time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s",
		symbol,
		timeframe,
		from.UTC().Format("20060102T1504"),
		to.UTC().Format("20060102T1504"),
	)
}

// Load 从缓存加载K线
func (c *Cache) Load(symbol, timeframe string, from, to time.Time) ([]Bar, error) {
	filename := filepath.Join(c.dir, c.key(symbol, timeframe, from, to)+".csv")

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取缓存文件失败: %w", err)
	}

	bars := make([]Bar, 0, len(records))
	for i, record := range records {
		if i == 0 {
			continue // 表头
		}
		if len(record) != 6 {
			return nil, fmt.Errorf("缓存行格式错误: %v", record)
		}

		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("解析时间戳失败: %w", err)
		}

		var values [5]float64
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("解析价格失败: %w", err)
			}
			values[j-1] = v
		}

		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(ts).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	return bars, nil
}

// Save 将K线写入缓存
func (c *Cache) Save(symbol, timeframe string, from, to time.Time, bars []Bar) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}

	filename := filepath.Join(c.dir, c.key(symbol, timeframe, from, to)+".csv")
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("创建缓存文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}

	for _, bar := range bars {
		record := []string{
			strconv.FormatInt(bar.Timestamp.UnixMilli(), 10),
			strconv.FormatFloat(bar.Open, 'f', -1, 64),
			strconv.FormatFloat(bar.High, 'f', -1, 64),
			strconv.FormatFloat(bar.Low, 'f', -1, 64),
			strconv.FormatFloat(bar.Close, 'f', -1, 64),
			strconv.FormatFloat(bar.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

// Clear 清空缓存目录
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("清理缓存失败: %w", err)
	}
	logger.Info("🧹 K线缓存已清空: %s", c.dir)
	return nil
}

// Stats 缓存统计
type CacheStats struct {
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
	SizeMB    float64 `json:"size_mb"`
}

// Stats 获取缓存统计
func (c *Cache) Stats() (CacheStats, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.csv"))
	if err != nil {
		return CacheStats{}, fmt.Errorf("读取缓存目录失败: %w", err)
	}

	var totalSize int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		totalSize += info.Size()
	}

	return CacheStats{
		FileCount: len(files),
		TotalSize: totalSize,
		SizeMB:    float64(totalSize) / 1024 / 1024,
	}, nil
}
