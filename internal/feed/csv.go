package feed

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"dca-backtest-go/internal/models"
)

// csv 文件格式: date,open,high,low,close,adj_close,volume
// date 为 YYYY-MM-DD, 行按日期严格升序, 每个交易日一行。

// LoadBars 从CSV文件加载一个标的的日K线序列。
// 返回的序列保证严格按日期升序, 乱序或重复日期视为数据错误。
func LoadBars(path string) ([]models.PriceBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开历史数据文件: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("无法读取CSV记录: %w", err)
	}
	if len(records) <= 1 { // 至少需要表头和一行数据
		return nil, fmt.Errorf("数据文件 %s 为空或只有表头", path)
	}

	// 移除表头
	records = records[1:]

	bars := make([]models.PriceBar, 0, len(records))
	var prev time.Time
	for i, record := range records {
		if len(record) < 7 {
			return nil, fmt.Errorf("第 %d 行字段不足: %v", i+2, record)
		}
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行日期格式错误: %w", i+2, err)
		}
		if !prev.IsZero() && !date.After(prev) {
			return nil, fmt.Errorf("第 %d 行日期 %s 未按升序排列", i+2, record[0])
		}
		prev = date

		bar := models.PriceBar{Date: date}
		for j, dst := range []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.AdjClose, &bar.Volume} {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行第 %d 列无法解析为数字: %w", i+2, j+2, err)
			}
			*dst = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// ClipBars 截取 [start, end] 闭区间内的K线。零值时间表示不设边界。
func ClipBars(bars []models.PriceBar, start, end time.Time) []models.PriceBar {
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
