package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trafficanalyzer/internal/config"
	"trafficanalyzer/internal/server/app"
)

const shutdownTimeout = 10 * time.Second

type httpServer interface {
	Addr() string
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "以 HTTP API 方式提供流量数据查询与增删",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := app.NewServer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("server 初始化失败：%w", err)
		}
		return runServer(ctx, srv)
	},
}

// runServer 运行 srv 直到 ctx 取消，然后在 shutdownTimeout 内优雅关闭。
func runServer(ctx context.Context, srv httpServer) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("server 监听：%s", srv.Addr())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server 运行失败：%w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server 关闭失败：%v", err)
		return fmt.Errorf("server 关闭失败：%w", err)
	}
	log.Printf("server 已关闭")
	return nil
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "监听地址")
	cobra.CheckErr(v.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen")))
}
