package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "TRAFFIC"

type DataConfig struct {
	File       string `mapstructure:"file"`
	ExportFile string `mapstructure:"export_file"`
	Progress   bool   `mapstructure:"progress"`
}

type TimestampConfig struct {
	// MonthOverride 为 1..12 时，解析时间一律使用该月份；0 表示按文本解析。
	MonthOverride int `mapstructure:"month_override"`
}

type PlotConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	DataFile string        `mapstructure:"data_file"`
	Command  string        `mapstructure:"command"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Listen            string        `mapstructure:"listen"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Timestamp TimestampConfig `mapstructure:"timestamp"`
	Plot      PlotConfig      `mapstructure:"plot"`
	Server    ServerConfig    `mapstructure:"server"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.file", "trafficdata.csv")
	v.SetDefault("data.export_file", "exported_trafficdata.csv")
	v.SetDefault("data.progress", false)
	v.SetDefault("timestamp.month_override", 0)
	v.SetDefault("plot.enabled", true)
	v.SetDefault("plot.data_file", "traffic_data.txt")
	v.SetDefault("plot.command", "gnuplot")
	v.SetDefault("plot.timeout", time.Duration(0))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
}

// Load 读取配置：默认值 < 配置文件 < 环境变量（TRAFFIC_DATA_FILE 等） < 已绑定的命令行参数。
// cfgFile 为空时在当前目录查找 trafficanalyzer.{yaml,json,toml}，找不到不算错误。
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("trafficanalyzer")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败：%w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("解析配置失败：%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Data.File == "" {
		return fmt.Errorf("data.file 不能为空")
	}
	if c.Data.ExportFile == "" {
		return fmt.Errorf("data.export_file 不能为空")
	}
	if c.Timestamp.MonthOverride < 0 || c.Timestamp.MonthOverride > 12 {
		return fmt.Errorf("timestamp.month_override 必须在 0..12 之间，当前为 %d", c.Timestamp.MonthOverride)
	}
	if c.Plot.Enabled && c.Plot.DataFile == "" {
		return fmt.Errorf("plot.data_file 不能为空")
	}
	if c.Plot.Timeout < 0 {
		return fmt.Errorf("plot.timeout 不能为负数")
	}
	return nil
}
