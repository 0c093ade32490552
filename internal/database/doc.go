// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接打开、连接池管理与事务重试，
支持 postgres/mysql/sqlite 三种驱动。

# 核心类型

  - PoolManager：持有 GORM DB 实例与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close()；HealthCheckInterval > 0 时后台定时 Ping，
    连续失败只在首次与恢复时记录日志。
  - PoolConfig / PoolConfigFromDatabase：由 config.DatabaseConfig 推导
    连接池参数，sqlite 固定为单连接。
  - PoolStats：写入 db_connections_open/idle 指标的连接池快照。
  - Open / NewGormLogger：按驱动打开连接，GORM 日志接入 zap。

# 事务重试

RunInTx 包裹版本激活、向量化状态回写与关注列表使用统计的 upsert。
IsTransient 识别可重试的失败：postgres 40001/40P01/55P03、mysql
1205/1213、sqlite database is locked、断连，以及并发激活撞上
uk_data_versions_active 唯一索引。其他错误原样返回，不重试。

# 方言

SupportsRowLocking 判断是否可使用 SELECT ... FOR UPDATE；sqlite 依赖
单连接串行化写入。
*/
package database
