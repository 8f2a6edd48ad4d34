package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"trafficanalyzer/internal/plot"
	"trafficanalyzer/internal/storage"
	"trafficanalyzer/internal/traffic"
	"trafficanalyzer/pkg/model"
)

type Plotter interface {
	Plot(ctx context.Context, dataFile string) error
}

// Session 持有一个 Store 及其落盘后端。
// 所有操作在同一把锁下串行执行；落盘失败时内存状态保持不变。
type Session struct {
	mu      sync.Mutex
	store   *traffic.Store
	backend storage.Backend
}

func New(store *traffic.Store, backend storage.Backend) *Session {
	if store == nil {
		store = traffic.New()
	}
	return &Session{store: store, backend: backend}
}

// Load 把后端数据逐条插入 Store（文件中越靠后的行在遍历中越靠前）。
func (s *Session) Load(ctx context.Context) (storage.LoadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Load(ctx, s.store.Insert)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

func (s *Session) Samples() []model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Samples()
}

func (s *Session) Range(w traffic.Window) []model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Range(w)
}

func (s *Session) Average(w traffic.Window) (traffic.Average, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Average(w)
}

func (s *Session) PeakHour(start, end time.Time) (traffic.Peak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.PeakHour(start, end)
}

func (s *Session) Summary() (traffic.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Summary()
}

// Add 先追加到文件，成功后再插入内存。
// 文件中写入的是用户输入的原始时间文本，内存中是解析后的时间，两者可能不一致
// （例如配置了月份覆盖时），重新加载时以文件文本为准。
func (s *Session) Add(ctx context.Context, value int, ts time.Time, rawTimestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Append(ctx, value, rawTimestamp); err != nil {
		return err
	}
	s.store.Insert(value, ts)
	return nil
}

// Delete 删除遍历顺序中第一个时间戳相同的样本，并用删除后的全部数据覆盖文件。
func (s *Session) Delete(ctx context.Context, ts time.Time) (model.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.store.Index(ts)
	if i < 0 {
		return model.Sample{}, traffic.ErrNotFound
	}
	all := s.store.Samples()
	remaining := make([]model.Sample, 0, len(all)-1)
	remaining = append(remaining, all[:i]...)
	remaining = append(remaining, all[i+1:]...)

	if err := s.backend.Rewrite(ctx, remaining); err != nil {
		return model.Sample{}, err
	}
	return s.store.Delete(ts)
}

func (s *Session) Export(ctx context.Context, w io.Writer) error {
	samples := s.Samples()
	return s.backend.Export(ctx, w, samples)
}

func (s *Session) ExportFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建导出文件失败：%w", err)
	}
	if err := s.Export(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭导出文件失败：%w", err)
	}
	return nil
}

// Plot 写出绘图数据文件后调用 p；p 为 nil 时只写数据文件。
func (s *Session) Plot(ctx context.Context, p Plotter, dataFile string) error {
	if err := plot.WriteDataFile(dataFile, s.Samples()); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return p.Plot(ctx, dataFile)
}
