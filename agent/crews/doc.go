// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 crews 提供有序任务流水线的执行与重放。

# 概述

一个 Crew 是按声明顺序排列的命名任务列表，所有任务共享同一个
不可变的 InputBundle。Runner 逐个执行任务，前序任务的输出累积为
后续任务的工作上下文；任一任务失败即终止整个运行（fail-fast）。
每次运行都写入 persistence.RunStore，Replayer 据此从任意任务恢复。

# 核心模型

  - InputBundle：规范化 JSON（键有序）+ sha256 摘要，重放时按原始字节还原。
  - Crew / Task / Agent：流水线定义，可从 YAML 加载；内置 engineering_team
    （design_task → code_task → frontend_task → test_task）。
  - TaskExecutor：把任务与输入转换为文本，LLMExecutor 经 llm.Provider 调用模型。
  - TaskError：携带失败任务名与序号，errors.Is 可匹配 TASK_FAILURE 与底层错误。

# 状态机

运行：pending → running → completed | failed。
任务：pending → running → completed | failed；未执行的任务 pending → skipped。
非法转换返回 ErrInvalidTransition。

# 重放

Replay(id) 先把 id 当作任务记录 ID，再当作运行 ID 解析：

  - 空标识返回 INVALID_ARGUMENT，不执行任何任务；
  - 输入包按存储的规范字节还原并校验摘要；
  - 恢复点之前任务的输出从原运行载入，缺失时返回 FAILED_PRECONDITION；
  - 新运行记录的 PreviousRunID 指向原运行。
*/
package crews
