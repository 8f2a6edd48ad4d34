package csvfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"trafficanalyzer/internal/storage"
	"trafficanalyzer/internal/timestamp"
	"trafficanalyzer/pkg/model"
)

const ExportHeader = "Traffic, Timestamp"

// ParseError 描述被跳过的一行。
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("第 %d 行解析失败（%q）：%v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Option func(*Store)

// WithLoadProgress 在加载时把读取的字节同步写给 fn 返回的 writer（例如进度条）。
func WithLoadProgress(fn func(size int64) io.Writer) Option {
	return func(s *Store) {
		s.progress = fn
	}
}

// Store 把流量数据保存为每行 "<traffic>, <timestamp>" 的纯文本文件。
type Store struct {
	path     string
	parser   timestamp.Parser
	progress func(size int64) io.Writer
}

var _ storage.Backend = (*Store)(nil)

func NewStore(path string, parser timestamp.Parser, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("数据文件路径不能为空")
	}
	s := &Store{path: path, parser: parser}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(ctx context.Context, fn storage.LoadFunc) (storage.LoadStats, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return storage.LoadStats{}, fmt.Errorf("打开数据文件失败：%w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.progress != nil {
		if fi, err := f.Stat(); err == nil {
			r = io.TeeReader(f, s.progress(fi.Size()))
		}
	}
	return s.LoadFrom(ctx, r, fn)
}

// MaxLineBytes 是单行允许的最大长度，更长的行整行跳过。
const MaxLineBytes = 64 * 1024

var ErrLineTooLong = errors.New("行过长")

// LoadFrom 逐行解析 r；解析失败或过长的行被跳过并记录在 LoadStats.Errors 中，不会中断加载。
func (s *Store) LoadFrom(ctx context.Context, r io.Reader, fn storage.LoadFunc) (storage.LoadStats, error) {
	var stats storage.LoadStats
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, tooLong, err := readLine(br)
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("读取数据文件失败：%w", err)
		}
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		line := strings.TrimRight(string(raw), "\r")
		if tooLong {
			stats.Skipped++
			stats.Errors = append(stats.Errors, &ParseError{Line: lineNo, Text: truncate(line, 64), Err: ErrLineTooLong})
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		traffic, ts, err := s.parseLine(line)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, &ParseError{Line: lineNo, Text: line, Err: err})
			continue
		}
		fn(traffic, ts)
		stats.Loaded++
	}
}

// readLine 读取一行（不含换行符）。超过 MaxLineBytes 时只保留开头部分，
// 余下内容读到行尾丢弃，并返回 tooLong=true。
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF && (len(line) > 0 || tooLong) {
			return line, tooLong, nil
		}
		if err != nil {
			return line, tooLong, err
		}
		if !tooLong {
			if len(line)+len(chunk) > MaxLineBytes {
				tooLong = true
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (s *Store) parseLine(line string) (int, time.Time, error) {
	rawTraffic, rawTS, ok := strings.Cut(line, ",")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("缺少逗号分隔符")
	}
	traffic, err := strconv.Atoi(strings.TrimSpace(rawTraffic))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("流量值非法：%w", err)
	}
	ts, err := s.parser.Parse(rawTS)
	if err != nil {
		return 0, time.Time{}, err
	}
	return traffic, ts, nil
}

// Append 追加一行。时间戳文本按用户输入原样写入，而不是用解析后的时间重新格式化。
func (s *Store) Append(ctx context.Context, traffic int, rawTimestamp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timestamp.HasControl(rawTimestamp) {
		return fmt.Errorf("%w：%q 包含控制字符", timestamp.ErrMalformed, rawTimestamp)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("打开数据文件失败：%w", err)
	}

	prefix := ""
	if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, fi.Size()-1); err == nil && last[0] != '\n' {
			prefix = "\n"
		}
	}

	if _, err := fmt.Fprintf(f, "%s%d, %s\n", prefix, traffic, strings.TrimSpace(rawTimestamp)); err != nil {
		_ = f.Close()
		return fmt.Errorf("追加数据失败：%w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭数据文件失败：%w", err)
	}
	return nil
}

// Rewrite 用 samples 原子地替换整个数据文件；已有文件的权限保持不变，新文件为 0644。
func (s *Store) Rewrite(ctx context.Context, samples []model.Sample) error {
	pf, err := renameio.NewPendingFile(s.path,
		renameio.WithTempDir(filepath.Dir(s.path)),
		renameio.WithPermissions(0o644),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		return fmt.Errorf("创建临时文件失败：%w", err)
	}
	defer pf.Cleanup()

	bw := bufio.NewWriter(pf)
	if err := writeLines(ctx, bw, samples); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("写入临时文件失败：%w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("覆盖数据文件失败：%w", err)
	}
	return nil
}

func (s *Store) Export(ctx context.Context, w io.Writer, samples []model.Sample) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, ExportHeader); err != nil {
		return fmt.Errorf("写入表头失败：%w", err)
	}
	if err := writeLines(ctx, bw, samples); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("导出失败：%w", err)
	}
	return nil
}

func writeLines(ctx context.Context, w io.Writer, samples []model.Sample) error {
	for i, v := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%d, %s\n", v.Traffic, timestamp.Format(v.Timestamp)); err != nil {
			return fmt.Errorf("写入数据失败：%w", err)
		}
	}
	return nil
}
