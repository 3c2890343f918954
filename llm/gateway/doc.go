/*
包 gateway 将限流闸门与重试策略组合为统一的出站调用入口。

每一次尝试（包括重试）都会先向共享的 ratelimit.Limiter 申请许可，
再在 retry.Retryer 的单次超时内执行调用。限流等待不计入单次超时。

网关可选地挂载 Prometheus 指标（按结果统计的尝试次数、限流等待、
调用总耗时）与 OpenTelemetry span（每次调用一个 span，每次尝试一个事件）。
*/
package gateway
