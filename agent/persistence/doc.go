// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供流水线运行记录的持久化存储抽象及多后端实现。

# 概述

每次流水线运行产生一条 RunRecord，记录规范化输入包（原始字节与
sha256 摘要）、任务声明顺序以及每个任务的输出或错误。重放控制器
依赖这些记录从指定任务恢复执行。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - RunStore: 运行记录接口，支持保存（整体替换）、按 ID 查询、
    按 crew/状态过滤列出（最新在前）、按任务记录 ID 反查所属运行与删除。

# 核心模型

  - RunRecord: 运行记录，状态机为 pending → running → completed/failed，
    PreviousRunID 指向被重放的运行。
  - TaskRecord: 任务记录，ID 可直接作为重放标识；未执行的任务记为 skipped。
  - NewRunID 生成按时间排序的 ULID；NewTaskRecordID 生成 UUID。

# 后端实现

  - Memory: 内存实现，适合开发与测试，重启后数据丢失。
  - File: 每个运行一个 JSON 文件，经 afero 原子写入，适合单节点部署。
  - Redis: String 存数据、Sorted Set 建索引、Hash 反查任务，写入走事务 Pipeline。
  - SQL: 基于 GORM（postgres / mysql / sqlite），写入在可重试事务中完成。

# 使用方式

	store, err := persistence.NewRunStore(config, logger)
*/
package persistence
