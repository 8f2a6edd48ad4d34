package timestamp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// FileLayout 是数据文件与导出文件中的时间格式，例如 "Fri Sep 29 20:05:00 2023"。
	FileLayout = "Mon Jan 02 15:04:05 2006"
	// PlotLayout 用于绘图数据和终端展示。
	PlotLayout = "2006-01-02 15:04:05"
)

var ErrMalformed = errors.New("时间格式非法")

var months = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		months[name] = m
		months[name[:3]] = m
	}
	months["sept"] = time.September
}

// Parser 解析 "<weekday> <month> <day> <H>:<M>:<S> <year>" 形式的时间。
//
// 星期字段只占位不参与计算。MonthOverride 为 1..12 时忽略文本中的月份，
// 统一使用该月份，兼容只记录单月数据的旧数据集。
type Parser struct {
	MonthOverride int
	Location      *time.Location
}

func (p Parser) Parse(text string) (time.Time, error) {
	// 原始文本会被原样追加进数据文件，内部的换行等控制字符会把一行拆成多行。
	if HasControl(text) {
		return time.Time{}, fmt.Errorf("%w：%q 包含控制字符", ErrMalformed, text)
	}
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return time.Time{}, fmt.Errorf("%w：%q 需要 5 个字段", ErrMalformed, text)
	}

	month, err := p.month(fields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w：%q：%v", ErrMalformed, text, err)
	}
	day, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w：%q 日期非法", ErrMalformed, text)
	}
	hms := strings.Split(fields[3], ":")
	if len(hms) != 3 {
		return time.Time{}, fmt.Errorf("%w：%q 时刻应为 H:M:S", ErrMalformed, text)
	}
	var clock [3]int
	for i, part := range hms {
		v, err := strconv.Atoi(part)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w：%q 时刻非法", ErrMalformed, text)
		}
		clock[i] = v
	}
	year, err := strconv.Atoi(fields[4])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w：%q 年份非法", ErrMalformed, text)
	}

	// 与 mktime 一致，越界字段由 time.Date 归一化（例如 Sep 31 -> Oct 1）。
	return time.Date(year, month, day, clock[0], clock[1], clock[2], 0, p.location()), nil
}

// HasControl 报告去掉首尾空白后的 s 是否还含有控制字符（制表符除外）。
func HasControl(s string) bool {
	return strings.ContainsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r != '\t' && unicode.IsControl(r)
	})
}

func (p Parser) month(field string) (time.Month, error) {
	if p.MonthOverride >= 1 && p.MonthOverride <= 12 {
		return time.Month(p.MonthOverride), nil
	}
	m, ok := months[strings.ToLower(field)]
	if !ok {
		return 0, fmt.Errorf("未知月份 %q", field)
	}
	return m, nil
}

func (p Parser) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.Local
}

func Format(t time.Time) string {
	return t.Format(FileLayout)
}

func FormatPlot(t time.Time) string {
	return t.Format(PlotLayout)
}
