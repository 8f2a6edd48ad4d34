package storage

import (
	"context"
	"io"
	"time"

	"trafficanalyzer/pkg/model"
)

// LoadFunc 接收每一条成功解析的记录，按文件顺序调用。
type LoadFunc func(traffic int, ts time.Time)

type LoadStats struct {
	Loaded  int
	Skipped int
	Errors  []error
}

// Backend 是流量数据的落盘后端。
type Backend interface {
	Load(ctx context.Context, fn LoadFunc) (LoadStats, error)
	// Append 追加一行，rawTimestamp 原样写入。
	Append(ctx context.Context, traffic int, rawTimestamp string) error
	// Rewrite 用 samples 整体覆盖后端文件。
	Rewrite(ctx context.Context, samples []model.Sample) error
	Export(ctx context.Context, w io.Writer, samples []model.Sample) error
}
