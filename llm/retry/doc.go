// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 retry 为单次远端调用提供有界重试。

# 核心模型

  - Policy：最大尝试次数、单次超时、基础间隔、退避倍数、抖动与错误分类器。
  - Retryer：Execute / Do 执行操作并按策略重试。
  - ExhaustedError：终止错误，携带尝试次数与最后一次错误，
    可用 errors.Is(err, ErrRetryExhausted) 判断。

# 行为

每次尝试都在 context.WithTimeout 内执行，超时按可重试失败处理；
即使操作本身不响应 ctx，超时依然生效。成功立即返回。失败时若尚未
达到 MaxAttempts，等待 Delay（Multiplier > 1 时指数增长）后再试。

# 错误分类

DefaultClassifier 不重试输入类错误（INVALID_ARGUMENT、INVALID_REQUEST、
AUTHENTICATION、FAILED_PRECONDITION）以及 Permanent 标记的错误，
其余错误（超时、网络、服务端错误）均重试。
*/
package retry
