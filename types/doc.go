// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 crewflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。限流、重试、网关与流水线
各层通过这里的 Error / ErrorCode 传递结构化错误，避免循环依赖。

# 错误体系

  - Error / ErrorCode：结构化错误，含 Retryable 与 Provider 标记
  - INVALID_ARGUMENT：参数非法（例如重放标识为空），不重试
  - ATTEMPT_TIMEOUT：单次调用超时，可重试
  - ATTEMPT_FAILURE：单次调用失败（网络或服务错误）
  - RETRY_EXHAUSTED：重试耗尽，由 retry.ExhaustedError 携带次数
  - TASK_FAILURE：流水线任务失败，由 crews.TaskError 携带任务名
  - CANCELLED / NOT_FOUND / FAILED_PRECONDITION

Error 实现了按错误码匹配的 Is 方法，因此可以用哨兵值配合 errors.Is 判断类别。
*/
package types
