// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 crewflow 运维 HTTP 端点的生命周期管理。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、带超时的
    Shutdown 以及异步错误通道。
  - Config：监听地址、读写超时与优雅关闭超时。

# 路由

NewMux 将 Prometheus 处理器挂载到 /metrics，并提供 /healthz。
NewHandler 在其外层套上 Recovery、SecurityHeaders、RequestLogger
中间件（Chain 按声明顺序包装）。CLI 在 metrics.enabled 为 true 时
启动该服务器，运行结束后关闭。
*/
package server
