package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trafficanalyzer/internal/analyzer/app"
	"trafficanalyzer/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "trafficanalyzer",
	Short:        "交互式流量数据分析工具",
	Long:         `trafficanalyzer 从 CSV 文件加载带时间戳的流量数据，提供区间查询、窗口平均、高峰时段统计、增删、导出与绘图。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.Run(ctx, cfg, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认查找 ./trafficanalyzer.yaml）")
	rootCmd.PersistentFlags().String("data", "trafficdata.csv", "流量数据文件")
	rootCmd.PersistentFlags().Int("month-override", 0, "解析时间时强制使用的月份（1..12），0 表示按文本解析")
	rootCmd.Flags().String("export", "exported_trafficdata.csv", "导出文件路径")
	rootCmd.Flags().Bool("progress", false, "加载时显示进度条")
	rootCmd.Flags().Bool("plot", true, "是否调用 gnuplot 绘图")

	cobra.CheckErr(v.BindPFlag("data.file", rootCmd.PersistentFlags().Lookup("data")))
	cobra.CheckErr(v.BindPFlag("timestamp.month_override", rootCmd.PersistentFlags().Lookup("month-override")))
	cobra.CheckErr(v.BindPFlag("data.export_file", rootCmd.Flags().Lookup("export")))
	cobra.CheckErr(v.BindPFlag("data.progress", rootCmd.Flags().Lookup("progress")))
	cobra.CheckErr(v.BindPFlag("plot.enabled", rootCmd.Flags().Lookup("plot")))

	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
