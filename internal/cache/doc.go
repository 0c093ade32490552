// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，是三级数据解析中的第一级。

# 概述

本包封装 go-redis 客户端，为 resolver 提供字节级的 Get/Set/Delete 接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。
支持可选 TLS 加密连接。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/DeletePrefix/Ping 与
    GetStats。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL、
    TLS 开关与健康检查间隔等参数。
  - Stats：缓存统计信息，包含本进程命中计数、命中率与 Redis 服务端
    统计，由 /stats 端点输出。

# 主要能力

  - 键值读写：值以 []byte 存取，TTL 为 0 时使用默认过期时间。
  - 前缀失效：DeletePrefix 通过 SCAN 批量删除同一实体的全部参数变体。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
