package traffic

import (
	"errors"
	"math"
	"time"

	"github.com/gammazero/deque"

	"trafficanalyzer/pkg/model"
)

var (
	ErrNotFound         = errors.New("未找到该时间戳的流量数据")
	ErrNoneFound        = errors.New("窗口内没有流量数据")
	ErrNoData           = errors.New("时间范围内没有流量数据")
	ErrEmpty            = errors.New("没有可用的流量数据")
	ErrInvalidRange     = errors.New("时间范围非法：结束时间必须晚于开始时间")
	ErrInvalidDirection = errors.New("方向非法：只能是 forward 或 backward")
	ErrInvalidWindow    = errors.New("窗口长度不能为负数")
)

type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

// Window 是闭区间 [Start, End]。
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(anchor time.Time, width time.Duration, dir Direction) (Window, error) {
	if width < 0 {
		return Window{}, ErrInvalidWindow
	}
	switch dir {
	case Forward:
		return Window{Start: anchor, End: anchor.Add(width)}, nil
	case Backward:
		return Window{Start: anchor.Add(-width), End: anchor}, nil
	default:
		return Window{}, ErrInvalidDirection
	}
}

// WindowSeconds 把秒数换算为窗口宽度；负数或超出 time.Duration 范围的值返回 ErrInvalidWindow。
func WindowSeconds(secs int64) (time.Duration, error) {
	if secs < 0 || secs > math.MaxInt64/int64(time.Second) {
		return 0, ErrInvalidWindow
	}
	return time.Duration(secs) * time.Second, nil
}

func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

type Average struct {
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
	Total int     `json:"total"`
}

type Peak struct {
	Hour  int `json:"hour"`
	Total int `json:"total"`
}

type Summary struct {
	Count int       `json:"count"`
	Total int       `json:"total"`
	Mean  float64   `json:"mean"`
	Max   int       `json:"max"`
	Min   int       `json:"min"`
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// Store 按“最近插入在前”的顺序保存样本。
// Store 不做并发保护，由调用方（session）串行化访问。
type Store struct {
	samples deque.Deque[model.Sample]
}

func New() *Store {
	return &Store{}
}

// Insert 把样本放到队首；时间戳可以重复，也不要求有序。
func (s *Store) Insert(traffic int, ts time.Time) {
	s.samples.PushFront(model.Sample{Traffic: traffic, Timestamp: ts})
}

func (s *Store) Len() int {
	return s.samples.Len()
}

// Samples 按遍历顺序返回全部样本的副本。
func (s *Store) Samples() []model.Sample {
	out := make([]model.Sample, 0, s.samples.Len())
	s.each(func(v model.Sample) {
		out = append(out, v)
	})
	return out
}

func (s *Store) Range(w Window) []model.Sample {
	out := make([]model.Sample, 0)
	s.each(func(v model.Sample) {
		if w.Contains(v.Timestamp) {
			out = append(out, v)
		}
	})
	return out
}

func (s *Store) Average(w Window) (Average, error) {
	var avg Average
	s.each(func(v model.Sample) {
		if w.Contains(v.Timestamp) {
			avg.Total += v.Traffic
			avg.Count++
		}
	})
	if avg.Count == 0 {
		return Average{}, ErrNoneFound
	}
	avg.Mean = float64(avg.Total) / float64(avg.Count)
	return avg, nil
}

// PeakHour 统计 [start, end] 内每个小时（0..23）的流量和，返回流量最大的小时。
// 平局时取编号最小的小时；最大值 <= 0 视为没有数据。
func (s *Store) PeakHour(start, end time.Time) (Peak, error) {
	if !end.After(start) {
		return Peak{}, ErrInvalidRange
	}

	var perHour [24]int
	s.each(func(v model.Sample) {
		if !v.Timestamp.Before(start) && !v.Timestamp.After(end) {
			perHour[v.Timestamp.Hour()] += v.Traffic
		}
	})

	peak := Peak{Hour: 0, Total: perHour[0]}
	for h := 1; h < len(perHour); h++ {
		if perHour[h] > peak.Total {
			peak = Peak{Hour: h, Total: perHour[h]}
		}
	}
	if peak.Total <= 0 {
		return Peak{}, ErrNoData
	}
	return peak, nil
}

// Index 返回遍历顺序中第一个时间戳等于 ts 的样本下标，找不到返回 -1。
func (s *Store) Index(ts time.Time) int {
	return s.samples.Index(func(v model.Sample) bool {
		return v.Timestamp.Equal(ts)
	})
}

func (s *Store) Delete(ts time.Time) (model.Sample, error) {
	i := s.Index(ts)
	if i < 0 {
		return model.Sample{}, ErrNotFound
	}
	return s.samples.Remove(i), nil
}

func (s *Store) Summary() (Summary, error) {
	if s.samples.Len() == 0 {
		return Summary{}, ErrEmpty
	}

	first := s.samples.Front()
	sum := Summary{
		Max:   first.Traffic,
		Min:   first.Traffic,
		First: first.Timestamp,
		Last:  first.Timestamp,
	}
	s.each(func(v model.Sample) {
		sum.Count++
		sum.Total += v.Traffic
		if v.Traffic > sum.Max {
			sum.Max = v.Traffic
		}
		if v.Traffic < sum.Min {
			sum.Min = v.Traffic
		}
		if v.Timestamp.Before(sum.First) {
			sum.First = v.Timestamp
		}
		if v.Timestamp.After(sum.Last) {
			sum.Last = v.Timestamp
		}
	})
	sum.Mean = float64(sum.Total) / float64(sum.Count)
	return sum, nil
}

func (s *Store) Reset() {
	s.samples.Clear()
}

func (s *Store) each(fn func(model.Sample)) {
	for i := 0; i < s.samples.Len(); i++ {
		fn(s.samples.At(i))
	}
}
