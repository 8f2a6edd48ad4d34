package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"

	"github.com/schollz/progressbar/v3"

	"trafficanalyzer/internal/config"
	"trafficanalyzer/internal/plot"
	"trafficanalyzer/internal/session"
	"trafficanalyzer/internal/storage"
	"trafficanalyzer/internal/storage/csvfile"
	"trafficanalyzer/internal/timestamp"
)

// Run 加载数据文件并进入交互菜单，直到用户选择退出或输入结束。
func Run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	sess, parser, err := Open(ctx, cfg, out)
	if err != nil {
		return err
	}

	var plotter session.Plotter
	if cfg.Plot.Enabled {
		plotter = plot.NewGnuplot(cfg.Plot.Command, out)
	}
	m := NewMenu(sess, parser, in, out, MenuOptions{
		ExportFile:   cfg.Data.ExportFile,
		PlotEnabled:  cfg.Plot.Enabled,
		PlotDataFile: cfg.Plot.DataFile,
		PlotTimeout:  cfg.Plot.Timeout,
		Plotter:      plotter,
	})
	return m.Run(ctx)
}

// Open 构造文件后端与会话并加载初始数据。
// 数据文件不存在时打印警告并以空数据继续；其他读取错误直接返回，避免残缺数据被写回文件。
func Open(ctx context.Context, cfg *config.Config, progressOut io.Writer) (*session.Session, timestamp.Parser, error) {
	parser := timestamp.Parser{MonthOverride: cfg.Timestamp.MonthOverride}

	var opts []csvfile.Option
	if cfg.Data.Progress {
		opts = append(opts, csvfile.WithLoadProgress(func(size int64) io.Writer {
			return progressbar.NewOptions64(size,
				progressbar.OptionSetWriter(progressOut),
				progressbar.OptionSetDescription("加载数据"),
				progressbar.OptionShowBytes(true),
				progressbar.OptionClearOnFinish(),
			)
		}))
	}
	backend, err := csvfile.NewStore(cfg.Data.File, parser, opts...)
	if err != nil {
		return nil, parser, err
	}

	sess := session.New(nil, backend)
	stats, err := sess.Load(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, parser, ctx.Err()
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("数据文件不存在，以空数据启动：%v", err)
		return sess, parser, nil
	default:
		// 只加载了一部分时不能继续：之后的删除会用内存中的残缺数据覆盖文件。
		return nil, parser, fmt.Errorf("加载数据文件失败（已读取 %d 条）：%w", stats.Loaded, err)
	}
	logLoadStats(cfg.Data.File, stats)
	return sess, parser, nil
}

func logLoadStats(path string, stats storage.LoadStats) {
	for _, e := range stats.Errors {
		log.Printf("跳过：%v", e)
	}
	log.Printf("加载完成：file=%s loaded=%d skipped=%d", path, stats.Loaded, stats.Skipped)
}
