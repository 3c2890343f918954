// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖出站调用网关
与任务流水线两个维度。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等向量指标。

# 主要能力

  - 网关指标：尝试次数（按 success/failure/timeout 分组）、
    调用总耗时、限流等待耗时。
  - 流水线指标：运行最终状态、任务执行次数与耗时，按 crew/task 分组。
  - Handler：以 promhttp 暴露 /metrics。
*/
package metrics
