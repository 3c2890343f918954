// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 crewflow 命令行程序入口。

# 概述

cmd/crewflow 装配限流器、重试器、调用网关、运行器与重放控制器，
以 cobra 子命令的形式暴露流水线的运行与重放。配置按 默认值 →
YAML 文件 → CREWFLOW_ 环境变量 的顺序加载，日志使用 zap。

# 子命令

  - run：使用内置输入包从第一个任务运行默认（或配置指定的）crew
  - replay <id>：按运行 ID 或任务记录 ID 重放；缺少标识时以非零状态退出，
    --from 指定从某个任务恢复
  - runs：按时间倒序列出运行记录，runs show <id> 查看任务明细
  - version：打印构建时注入的 Version、BuildTime、GitCommit

# 运维端点

metrics.enabled 为 true 时，命令执行期间在 metrics.addr 上提供
/metrics 与 /healthz，运行结束后随进程关闭。
*/
package main
