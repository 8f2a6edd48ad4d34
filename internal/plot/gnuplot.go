package plot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"trafficanalyzer/internal/timestamp"
	"trafficanalyzer/pkg/model"
)

// ErrUnavailable 表示找不到绘图程序；调用方应当提示后继续，而不是失败退出。
var ErrUnavailable = errors.New("绘图程序不可用")

func WriteData(w io.Writer, samples []model.Sample) error {
	bw := bufio.NewWriter(w)
	for _, v := range samples {
		if _, err := fmt.Fprintf(bw, "%s %d\n", timestamp.FormatPlot(v.Timestamp), v.Traffic); err != nil {
			return fmt.Errorf("写入绘图数据失败：%w", err)
		}
	}
	return bw.Flush()
}

func WriteDataFile(path string, samples []model.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建绘图数据文件失败：%w", err)
	}
	if err := WriteData(f, samples); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Gnuplot 通过 stdin 把脚本交给 gnuplot 进程，进程输出写到 Output（为 nil 时丢弃）。
type Gnuplot struct {
	Command string
	Args    []string
	Output  io.Writer
}

func NewGnuplot(command string, out io.Writer) *Gnuplot {
	if command == "" {
		command = "gnuplot"
	}
	return &Gnuplot{Command: command, Args: []string{"-persistent"}, Output: out}
}

func (g *Gnuplot) Plot(ctx context.Context, dataFile string) error {
	bin, err := exec.LookPath(g.Command)
	if err != nil {
		return fmt.Errorf("%w：%v", ErrUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, bin, g.Args...)
	cmd.Stdin = strings.NewReader(Script(dataFile))
	cmd.Stdout = g.Output
	cmd.Stderr = g.Output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("运行 %s 失败：%w", g.Command, err)
	}
	return nil
}

// Script 生成绘图脚本：x 轴为时间（%H:%M），y 轴为流量。
func Script(dataFile string) string {
	var b strings.Builder
	b.WriteString("set terminal qt size 800,600\n")
	b.WriteString("set title 'Traffic Analysis'\n")
	b.WriteString("set xdata time\n")
	b.WriteString("set timefmt '%Y-%m-%d %H:%M:%S'\n")
	b.WriteString("set format x '%H:%M'\n")
	b.WriteString("set autoscale\n")
	b.WriteString("set xtics auto\n")
	b.WriteString("set ytics auto\n")
	b.WriteString("set xlabel 'Time' font ',10'\n")
	b.WriteString("set ylabel 'Traffic Volume' font ',10'\n")
	b.WriteString("set xtics font ',8'\n")
	b.WriteString("set ytics font ',8'\n")
	b.WriteString("set grid\n")
	fmt.Fprintf(&b, "plot '%s' using 1:2 with lines title 'Traffic'\n", dataFile)
	b.WriteString("pause -1\n")
	return b.String()
}
