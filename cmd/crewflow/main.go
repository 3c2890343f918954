// =============================================================================
// crewflow 主入口
// =============================================================================
// 流水线命令行入口：运行、重放与查看运行记录
//
// 使用方法:
//
//	crewflow run                          # 使用内置输入运行流水线
//	crewflow run --config config.yaml     # 指定配置文件
//	crewflow replay <run-id|task-id>      # 从记录的检查点重放
//	crewflow runs --limit 10              # 列出最近的运行
//	crewflow version                      # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 中断信号取消进行中的运行，当前任务记为失败并落盘
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
