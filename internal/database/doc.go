// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，供 SQL 运行记录
存储使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 与事务方法。
  - PoolConfig：最大空闲连接数、最大打开连接数与连接生命周期。

# 主要能力

  - Dialector / Open：按驱动名选择 postgres、mysql、sqlite（纯 Go）
    或 sqlite3（cgo）方言。
  - WithTransaction：单次事务执行。
  - WithTransactionRetry：复用 llm/retry 的退避重试器，对死锁、
    序列化失败、SQLite busy 等瞬时错误重试。
*/
package database
