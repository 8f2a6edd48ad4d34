package csvfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trafficanalyzer/internal/timestamp"
	"trafficanalyzer/pkg/model"
)

type loaded struct {
	traffic int
	ts      time.Time
}

func newTestStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trafficdata.csv")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s, err := NewStore(path, timestamp.Parser{Location: time.UTC})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestNewStore_EmptyPath(t *testing.T) {
	if _, err := NewStore("", timestamp.Parser{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestStore_LoadSkipsBadLines(t *testing.T) {
	s := newTestStore(t, strings.Join([]string{
		"Traffic, Timestamp",
		"10, Fri Sep 29 20:05:00 2023",
		"abc, Fri Sep 29 20:06:00 2023",
		"",
		"12, not a time",
		"no comma here",
		"-4, Fri Sep 29 21:00:00 2023\r",
	}, "\n"))

	var rows []loaded
	stats, err := s.Load(context.Background(), func(traffic int, ts time.Time) {
		rows = append(rows, loaded{traffic, ts})
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Loaded != 2 || stats.Skipped != 4 {
		t.Errorf("stats=%+v", stats)
	}
	if len(stats.Errors) != 4 {
		t.Fatalf("Expected 4 errors, got %d", len(stats.Errors))
	}
	var pe *ParseError
	if !errors.As(stats.Errors[0], &pe) || pe.Line != 1 {
		t.Errorf("first error = %v", stats.Errors[0])
	}
	if !errors.Is(stats.Errors[2], timestamp.ErrMalformed) {
		t.Errorf("Expected ErrMalformed for line 5, got %v", stats.Errors[2])
	}

	if len(rows) != 2 || rows[0].traffic != 10 || rows[1].traffic != -4 {
		t.Fatalf("rows=%+v", rows)
	}
	want := time.Date(2023, time.September, 29, 21, 0, 0, 0, time.UTC)
	if !rows[1].ts.Equal(want) {
		t.Errorf("Expected %v, got %v", want, rows[1].ts)
	}
}

func TestStore_LoadSkipsOverlongLine(t *testing.T) {
	s := newTestStore(t, strings.Join([]string{
		"1, Fri Sep 29 01:00:00 2023",
		"2, " + strings.Repeat("x", 70*1024),
		"3, Fri Sep 29 03:00:00 2023",
		"4, Fri Sep 29 04:00:00 2023",
	}, "\n"))

	var rows []loaded
	stats, err := s.Load(context.Background(), func(traffic int, ts time.Time) {
		rows = append(rows, loaded{traffic, ts})
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Loaded != 3 || stats.Skipped != 1 || len(rows) != 3 {
		t.Fatalf("stats=%+v rows=%d", stats, len(rows))
	}
	if rows[2].traffic != 4 {
		t.Errorf("last row=%+v", rows[2])
	}
	var pe *ParseError
	if !errors.As(stats.Errors[0], &pe) {
		t.Fatalf("error=%v", stats.Errors[0])
	}
	if pe.Line != 2 || !errors.Is(pe, ErrLineTooLong) {
		t.Errorf("line=%d err=%v", pe.Line, pe.Err)
	}
	if len(pe.Text) > 100 {
		t.Errorf("error text not truncated: %d bytes", len(pe.Text))
	}
}

func TestStore_LoadOverlongLastLine(t *testing.T) {
	s := newTestStore(t, "1, Fri Sep 29 01:00:00 2023\n"+strings.Repeat("9", MaxLineBytes+1))
	stats, err := s.Load(context.Background(), func(int, time.Time) {})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Loaded != 1 || stats.Skipped != 1 {
		t.Errorf("stats=%+v", stats)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t, "")
	_, err := s.Load(context.Background(), func(int, time.Time) {})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestStore_LoadProgress(t *testing.T) {
	content := "1, Fri Sep 29 20:05:00 2023\n"
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	var gotSize int64
	s, err := NewStore(path, timestamp.Parser{Location: time.UTC}, WithLoadProgress(func(size int64) io.Writer {
		gotSize = size
		return &buf
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background(), func(int, time.Time) {}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if gotSize != int64(len(content)) || buf.String() != content {
		t.Errorf("size=%d progress=%q", gotSize, buf.String())
	}
}

func TestStore_AppendKeepsRawText(t *testing.T) {
	s := newTestStore(t, "10, Fri Sep 29 20:05:00 2023")

	if err := s.Append(context.Background(), 7, " Fri Sep 29 8:5:0 2023 "); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(context.Background(), 8, "Fri Sep 29 09:00:00 2023"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	want := "10, Fri Sep 29 20:05:00 2023\n7, Fri Sep 29 8:5:0 2023\n8, Fri Sep 29 09:00:00 2023\n"
	if got := readFile(t, s.Path()); got != want {
		t.Errorf("file content:\n%q\nwant:\n%q", got, want)
	}
}

func TestStore_AppendRejectsLineBreaks(t *testing.T) {
	s := newTestStore(t, "10, Fri Sep 29 20:05:00 2023\n")

	for _, raw := range []string{"Fri Sep 29\n20:05:00 2023", "Fri Sep 29\r20:05:00 2023"} {
		if err := s.Append(context.Background(), 7, raw); !errors.Is(err, timestamp.ErrMalformed) {
			t.Errorf("Append(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
	if got := readFile(t, s.Path()); got != "10, Fri Sep 29 20:05:00 2023\n" {
		t.Errorf("file changed: %q", got)
	}
}

func TestStore_AppendCreatesFile(t *testing.T) {
	s := newTestStore(t, "")
	if err := s.Append(context.Background(), 1, "Fri Sep 29 20:05:00 2023"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := readFile(t, s.Path()); got != "1, Fri Sep 29 20:05:00 2023\n" {
		t.Errorf("content=%q", got)
	}
}

func TestStore_Rewrite(t *testing.T) {
	s := newTestStore(t, "stale line\n")
	samples := []model.Sample{
		{Traffic: 5, Timestamp: time.Date(2023, time.September, 29, 22, 0, 0, 0, time.UTC)},
		{Traffic: 10, Timestamp: time.Date(2023, time.September, 9, 8, 5, 0, 0, time.UTC)},
	}
	if err := s.Rewrite(context.Background(), samples); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	want := "5, Fri Sep 29 22:00:00 2023\n10, Sat Sep 09 08:05:00 2023\n"
	if got := readFile(t, s.Path()); got != want {
		t.Errorf("content=%q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected temp file to be cleaned up, dir has %d entries", len(entries))
	}
}

func TestStore_RewriteKeepsFileMode(t *testing.T) {
	s := newTestStore(t, "1, Fri Sep 29 20:00:00 2023\n")
	if err := os.Chmod(s.Path(), 0o600); err != nil {
		t.Fatal(err)
	}
	samples := []model.Sample{{Traffic: 2, Timestamp: time.Date(2023, time.September, 29, 21, 0, 0, 0, time.UTC)}}
	if err := s.Rewrite(context.Background(), samples); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode=%v, want 0600", fi.Mode().Perm())
	}
	if got := readFile(t, s.Path()); got != "2, Fri Sep 29 21:00:00 2023\n" {
		t.Errorf("content=%q", got)
	}
}

func TestStore_RewriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "data.csv")
	s, err := NewStore(path, timestamp.Parser{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Rewrite(context.Background(), nil); err == nil {
		t.Error("Expected error when directory does not exist")
	}
}

func TestStore_Export(t *testing.T) {
	s := newTestStore(t, "")
	var buf bytes.Buffer
	samples := []model.Sample{
		{Traffic: 3, Timestamp: time.Date(2023, time.September, 29, 20, 5, 0, 0, time.UTC)},
	}
	if err := s.Export(context.Background(), &buf, samples); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	want := "Traffic, Timestamp\n3, Fri Sep 29 20:05:00 2023\n"
	if buf.String() != want {
		t.Errorf("export=%q", buf.String())
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t, "")
	var buf bytes.Buffer
	in := []model.Sample{
		{Traffic: 1, Timestamp: time.Date(2023, time.October, 1, 0, 0, 1, 0, time.UTC)},
		{Traffic: 2, Timestamp: time.Date(2023, time.September, 30, 23, 59, 59, 0, time.UTC)},
	}
	if err := s.Export(context.Background(), &buf, in); err != nil {
		t.Fatal(err)
	}

	var out []model.Sample
	stats, err := s.LoadFrom(context.Background(), &buf, func(traffic int, ts time.Time) {
		out = append(out, model.Sample{Traffic: traffic, Timestamp: ts})
	})
	if err != nil {
		t.Fatal(err)
	}
	// 表头行会被当作解析失败跳过
	if stats.Skipped != 1 || len(out) != 2 {
		t.Fatalf("stats=%+v out=%+v", stats, out)
	}
	for i := range in {
		if out[i].Traffic != in[i].Traffic || !out[i].Timestamp.Equal(in[i].Timestamp) {
			t.Errorf("row %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}
