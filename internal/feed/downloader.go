package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BarDownloader 用于从币安下载日K线数据, 作为外部行情提供方的一种实现。
// 回测核心只消费CSV, 数据来源可以替换。
type BarDownloader struct {
	client *binance.Client
}

// NewBarDownloader 创建一个新的下载器实例
func NewBarDownloader() *BarDownloader {
	return &BarDownloader{
		client: binance.NewClient("", ""), // 公共接口不需要API Key
	}
}

// DownloadDailyBars 下载指定标的和时间范围内的日K线, 写成回测核心可读的CSV。
// 如果文件已存在, 则跳过下载, 直接使用缓存。
func (d *BarDownloader) DownloadDailyBars(ctx context.Context, symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		fmt.Printf("从缓存加载数据: %s\n", filePath)
		return nil
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "open", "high", "low", "close", "adj_close", "volume"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval("1d").
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(1000).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("下载K线数据失败: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			day := time.UnixMilli(k.OpenTime).UTC().Format("2006-01-02")
			// 没有复权的概念, adj_close 直接用收盘价
			record := []string{day, k.Open, k.High, k.Low, k.Close, k.Close, k.Volume}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("写入CSV记录失败: %w", err)
			}
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		time.Sleep(200 * time.Millisecond) // 避免过于频繁的请求
	}

	fmt.Printf("成功下载日K线数据到 %s\n", filePath)
	return nil
}

// CacheFileName 返回某个标的在数据目录下的缓存文件名
func CacheFileName(dataDir, symbol, startDate, endDate string) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s-%s-%s.csv", symbol, startDate, endDate))
}
