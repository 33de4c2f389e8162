// ====================================
// File: cmd/querycore/main.go
// ====================================
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/rovshanmuradov/solana-query/internal/app"
	"github.com/rovshanmuradov/solana-query/internal/utils/logger"
)

func main() {
	fx.New(
		app.Module,
		fx.WithLogger(func(log *logger.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.WithComponent("fx")}
		}),
	).Run()
}
