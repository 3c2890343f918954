// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 ratelimit 提供进程级的出站调用最小间隔闸门。

# 概述

所有发往远端模型服务的调用在真正发出前都要先经过同一个 Limiter。
Limiter 通过容量为 1 的信号量串行化放行，持有者根据上一次放行时刻
计算需要等待的时长，等待结束后记录新的放行时刻。因此不论调用来自
哪个任务、哪个 goroutine，任意两次放行之间都不小于 minInterval。

# 取消语义

Acquire 接收 context。排队或等待期间被取消时立即返回 ctx.Err()，
最近放行时刻保持不变，只反映真正完成的放行。

# 配额

WithQuota 可以叠加一个 golang.org/x/time/rate 令牌桶，用于表达
供应商的每分钟请求数上限；配额在间隔满足之后、记录放行之前消费。
*/
package ratelimit
