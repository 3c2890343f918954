// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供 crewflow 访问远端模型服务的最小接入层。

# 核心接口

  - [Provider]：Completion / Name。厂商协议不在本项目范围内。
  - [ThrottledProvider]：装饰器，每次 Completion 都经过 gateway.Gateway
    （共享限流、重试、单次超时）。
  - [DryRunProvider]：本地确定性实现，CLI 默认使用；测试中可注入
    失败序列与延迟，用于模拟远端的瞬时故障。

# 子包

  - ratelimit：进程级最小间隔闸门
  - retry：重试策略与错误分类
  - gateway：限流与重试的组合入口
*/
package llm
