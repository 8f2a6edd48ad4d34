package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"trafficanalyzer/internal/plot"
	"trafficanalyzer/internal/session"
	"trafficanalyzer/internal/timestamp"
	"trafficanalyzer/internal/traffic"
	"trafficanalyzer/pkg/model"
)

const exampleTime = "Fri Sep 29 20:05:00 2023"

var errInputClosed = errors.New("输入已结束")

type MenuOptions struct {
	ExportFile   string
	PlotEnabled  bool
	PlotDataFile string
	PlotTimeout  time.Duration
	Plotter      session.Plotter
}

type Menu struct {
	sess   *session.Session
	parser timestamp.Parser
	in     *bufio.Scanner
	out    io.Writer
	opts   MenuOptions

	lines chan inputLine
}

type inputLine struct {
	text string
	err  error
}

func NewMenu(sess *session.Session, parser timestamp.Parser, in io.Reader, out io.Writer, opts MenuOptions) *Menu {
	return &Menu{
		sess:   sess,
		parser: parser,
		in:     bufio.NewScanner(in),
		out:    out,
		opts:   opts,
	}
}

// Run 在 ctx 取消、输入结束或用户选择退出时返回；取消时不等待当前这一行输入。
func (m *Menu) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	m.startReader(done)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m.printMenu()

		line, err := m.readLine(ctx)
		if err != nil {
			if errors.Is(err, errInputClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		choice, convErr := strconv.Atoi(line)
		if convErr != nil {
			choice = 0
		}

		switch choice {
		case 1:
			err = m.viewRange(ctx)
		case 2:
			err = m.average(ctx)
		case 3:
			err = m.peakHour(ctx)
		case 4:
			err = m.add(ctx)
		case 5:
			err = m.delete(ctx)
		case 6:
			err = m.export(ctx)
		case 7:
			m.summary()
		case 8:
			m.plot(ctx)
		case 9:
			fmt.Fprintln(m.out, "Exiting...")
			return nil
		default:
			fmt.Fprintln(m.out, "Invalid choice. Please try again.")
		}
		if err != nil {
			if errors.Is(err, errInputClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (m *Menu) printMenu() {
	fmt.Fprint(m.out, `
====================================
        TRAFFIC ANALYZER MENU
====================================
| 1. View Traffic Data in Time Range |
| 2. Analyze Average Traffic         |
| 3. Find Peak Traffic Hour          |
| 4. Add Traffic Data                |
| 5. Delete Traffic Data             |
| 6. Export Traffic Data to CSV      |
| 7. Display Traffic Summary         |
| 8. Visualise Traffic Data          |
| 9. Exit                            |
====================================
Please select an option: `)
}

// startReader 在单独的 goroutine 中读取输入，阻塞的 Scan 不会拖住 ctx 取消。
// 输入结束后关闭 m.lines。
func (m *Menu) startReader(done <-chan struct{}) {
	lines := make(chan inputLine)
	m.lines = lines
	go func() {
		defer close(lines)
		for m.in.Scan() {
			select {
			case lines <- inputLine{text: m.in.Text()}:
			case <-done:
				return
			}
		}
		if err := m.in.Err(); err != nil {
			select {
			case lines <- inputLine{err: fmt.Errorf("读取输入失败：%w", err)}:
			case <-done:
			}
		}
	}()
}

func (m *Menu) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-m.lines:
		if !ok {
			return "", errInputClosed
		}
		if l.err != nil {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}

func (m *Menu) prompt(ctx context.Context, label string) (string, error) {
	fmt.Fprint(m.out, label)
	return m.readLine(ctx)
}

// promptTime 读取一行时间文本，返回解析结果和原始文本；ok=false 表示已向用户报告错误。
func (m *Menu) promptTime(ctx context.Context, label string) (time.Time, string, bool, error) {
	raw, err := m.prompt(ctx, fmt.Sprintf("%s (e.g., '%s'): ", label, exampleTime))
	if err != nil {
		return time.Time{}, "", false, err
	}
	ts, err := m.parser.Parse(raw)
	if err != nil {
		fmt.Fprintf(m.out, "Error parsing timestamp: %v\n", err)
		return time.Time{}, raw, false, nil
	}
	return ts, raw, true, nil
}

func (m *Menu) promptWindow(ctx context.Context) (traffic.Window, bool, error) {
	anchor, _, ok, err := m.promptTime(ctx, "Enter the time")
	if err != nil || !ok {
		return traffic.Window{}, false, err
	}
	rawSeconds, err := m.prompt(ctx, "Enter the time window in seconds: ")
	if err != nil {
		return traffic.Window{}, false, err
	}
	seconds, err := strconv.ParseInt(rawSeconds, 10, 64)
	if err != nil {
		fmt.Fprintf(m.out, "Invalid window: %q\n", rawSeconds)
		return traffic.Window{}, false, nil
	}
	width, err := traffic.WindowSeconds(seconds)
	if err != nil {
		fmt.Fprintf(m.out, "Invalid window: %q\n", rawSeconds)
		return traffic.Window{}, false, nil
	}
	rawDir, err := m.prompt(ctx, "Direction (1 = forward, -1 = backward): ")
	if err != nil {
		return traffic.Window{}, false, err
	}
	dir, ok := ParseDirection(rawDir)
	if !ok {
		fmt.Fprintf(m.out, "Invalid direction: %q\n", rawDir)
		return traffic.Window{}, false, nil
	}

	w, err := traffic.NewWindow(anchor, width, dir)
	if err != nil {
		fmt.Fprintln(m.out, err)
		return traffic.Window{}, false, nil
	}
	return w, true, nil
}

// ParseDirection 接受 1 / -1 以及 forward / backward。
func ParseDirection(s string) (traffic.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "+1", "forward", "f":
		return traffic.Forward, true
	case "-1", "backward", "b":
		return traffic.Backward, true
	}
	return 0, false
}

func (m *Menu) viewRange(ctx context.Context) error {
	w, ok, err := m.promptWindow(ctx)
	if err != nil || !ok {
		return err
	}
	rows := m.sess.Range(w)
	fmt.Fprintln(m.out, "Traffic values within the sliding window:")
	renderSamples(m.out, rows)
	return nil
}

func (m *Menu) average(ctx context.Context) error {
	w, ok, err := m.promptWindow(ctx)
	if err != nil || !ok {
		return err
	}
	fmt.Fprintln(m.out, "Traffic values within the sliding window for average:")
	renderSamples(m.out, m.sess.Range(w))

	avg, err := m.sess.Average(w)
	if errors.Is(err, traffic.ErrNoneFound) {
		fmt.Fprintln(m.out, "No traffic data found in the specified range.")
		return nil
	}
	fmt.Fprintf(m.out, "Average Traffic: %.2f (%d samples)\n", avg.Mean, avg.Count)
	return nil
}

func (m *Menu) peakHour(ctx context.Context) error {
	if m.sess.Len() == 0 {
		fmt.Fprintln(m.out, "No traffic data available.")
		return nil
	}
	start, _, ok, err := m.promptTime(ctx, "Enter the start time")
	if err != nil || !ok {
		return err
	}
	end, _, ok, err := m.promptTime(ctx, "Enter the end time")
	if err != nil || !ok {
		return err
	}

	peak, err := m.sess.PeakHour(start, end)
	switch {
	case errors.Is(err, traffic.ErrInvalidRange):
		fmt.Fprintln(m.out, "Invalid time range. The end time must be after the start time.")
	case errors.Is(err, traffic.ErrNoData):
		fmt.Fprintln(m.out, "No traffic data found within the specified time range.")
	case err == nil:
		fmt.Fprintf(m.out, "Peak traffic hour: %02d:00 with total traffic of %d within the given range\n", peak.Hour, peak.Total)
	}
	return nil
}

func (m *Menu) add(ctx context.Context) error {
	rawValue, err := m.prompt(ctx, "Enter traffic value: ")
	if err != nil {
		return err
	}
	value, err := strconv.Atoi(rawValue)
	if err != nil {
		fmt.Fprintf(m.out, "Invalid traffic value: %q\n", rawValue)
		return nil
	}
	ts, raw, ok, err := m.promptTime(ctx, "Enter the time")
	if err != nil || !ok {
		return err
	}

	if err := m.sess.Add(ctx, value, ts, raw); err != nil {
		fmt.Fprintf(m.out, "Error adding traffic data: %v\n", err)
		return nil
	}
	fmt.Fprintln(m.out, "Traffic data added successfully.")
	return nil
}

func (m *Menu) delete(ctx context.Context) error {
	ts, _, ok, err := m.promptTime(ctx, "Enter the timestamp of the traffic data to delete")
	if err != nil || !ok {
		return err
	}

	_, err = m.sess.Delete(ctx, ts)
	switch {
	case errors.Is(err, traffic.ErrNotFound):
		fmt.Fprintln(m.out, "No traffic data found for the specified timestamp.")
	case err != nil:
		fmt.Fprintf(m.out, "Error deleting traffic data: %v\n", err)
	default:
		fmt.Fprintln(m.out, "Traffic data deleted successfully.")
	}
	return nil
}

func (m *Menu) export(ctx context.Context) error {
	if err := m.sess.ExportFile(ctx, m.opts.ExportFile); err != nil {
		fmt.Fprintf(m.out, "Error exporting data: %v\n", err)
		return nil
	}
	fmt.Fprintf(m.out, "Traffic data exported successfully to %s.\n", m.opts.ExportFile)
	return nil
}

func (m *Menu) summary() {
	sum, err := m.sess.Summary()
	if errors.Is(err, traffic.ErrEmpty) {
		fmt.Fprintln(m.out, "No traffic data available.")
		return
	}
	fmt.Fprintln(m.out, "Traffic Summary:")
	renderSummary(m.out, sum)
}

func (m *Menu) plot(ctx context.Context) {
	if !m.opts.PlotEnabled {
		fmt.Fprintln(m.out, "Plotting is disabled.")
		return
	}
	if m.opts.PlotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.PlotTimeout)
		defer cancel()
	}

	err := m.sess.Plot(ctx, m.opts.Plotter, m.opts.PlotDataFile)
	switch {
	case errors.Is(err, plot.ErrUnavailable):
		fmt.Fprintf(m.out, "Plot data written to %s; plotting skipped: %v\n", m.opts.PlotDataFile, err)
	case err != nil:
		fmt.Fprintf(m.out, "Error plotting traffic data: %v\n", err)
	default:
		fmt.Fprintf(m.out, "Plot data written to %s.\n", m.opts.PlotDataFile)
	}
}

func renderSamples(w io.Writer, rows []model.Sample) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Traffic", "Timestamp"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)
	for _, r := range rows {
		t.Append([]string{
			strconv.Itoa(r.Traffic),
			timestamp.FormatPlot(r.Timestamp),
		})
	}
	t.Render()
}

func renderSummary(w io.Writer, sum traffic.Summary) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Metric", "Value"})
	t.SetAutoWrapText(false)
	t.AppendBulk([][]string{
		{"Total Entries", strconv.Itoa(sum.Count)},
		{"Total Traffic", strconv.Itoa(sum.Total)},
		{"Average Traffic", fmt.Sprintf("%.2f", sum.Mean)},
		{"Maximum Traffic", strconv.Itoa(sum.Max)},
		{"Minimum Traffic", strconv.Itoa(sum.Min)},
		{"Start Time", timestamp.FormatPlot(sum.First)},
		{"End Time", timestamp.FormatPlot(sum.Last)},
	})
	t.Render()
}
