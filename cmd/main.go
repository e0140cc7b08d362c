// cmd/main.go - 브릿지 서비스 진입점
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"botvac-bridge/internal/config"
	"botvac-bridge/internal/di"
	"botvac-bridge/internal/utils"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	utils.SetupLogger(cfg.LogLevel)

	// DI 컨테이너 생성
	container, err := di.NewContainer(cfg)
	if err != nil {
		utils.Logger.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Cleanup()

	// 우아한 종료 처리
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := container.Seed(ctx); err != nil {
		utils.Logger.Errorf("Failed to seed robot identities: %v", err)
		return
	}

	// 브릿지 서비스 시작, 종료 신호까지 블록
	if err := di.NewBridgeService(container).Run(ctx); err != nil {
		utils.Logger.Errorf("Bridge service stopped with error: %v", err)
		return
	}

	utils.Logger.Info("✅ Botvac bridge shutdown completed")
}
