/*
Package resolver 实现行情数据的三级解析：Redis 缓存 → 关系库 → 外部数据源。

每一级未命中时向下查找，命中后回写上层：持久层命中回写缓存，
外部数据源命中先规范化再写入持久层与缓存。缓存 TTL 按数据类型配置。

数据源失败或返回空数据不视为异常，Resolve 返回 TierUnavailable 与 nil 值，
调用方据此区分“无数据”与“从哪一级拿到数据”。同一键上的并发解析通过
singleflight 合并为一次下游调用。
*/
package resolver
