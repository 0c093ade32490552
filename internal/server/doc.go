// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 stockrag 的 HTTP 监听生命周期。serve 命令同时运行
API 与 Prometheus metrics 两个 Manager。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown。
  - Config：监听地址、读写超时、空闲超时、最大请求头与优雅关闭超时，
    由 ConfigFrom 从 config.ServerConfig 生成。

# 行为

  - Start 非阻塞；Addr 在启动后返回实际监听地址（支持 :0）。
  - Run 阻塞到 ctx 结束或服务异常退出，然后在 ShutdownTimeout
    内排空在途请求。信号处理由调用方通过 signal.NotifyContext 完成。
  - Shutdown 幂等，关闭后不可再次 Start。
*/
package server
