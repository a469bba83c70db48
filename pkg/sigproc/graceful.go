package sigproc

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utrading/utrading-perp-core/pkg/goplus"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// ShutdownTimeout 收到信号后等待 shutdown 完成的最长时间
var ShutdownTimeout = 30 * time.Second

type HandlerFunc func(os.Signal)

// GracefulShutdown 收到 SIGINT/SIGTERM/SIGQUIT 后取消 ctx 并执行 shutdown；
// shutdown 超时则强制退出
func GracefulShutdown(cancel context.CancelFunc, shutdown HandlerFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	goplus.Go(func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("received signal")

		done := make(chan struct{})
		goplus.Go(func() {
			defer close(done)
			shutdown(sig)
		})

		select {
		case <-done:
			cancel()
		case <-time.After(ShutdownTimeout):
			logger.Warn().Dur("timeout", ShutdownTimeout).Msg("shutdown timed out, exiting")
			os.Exit(1)
		}
	})
}
