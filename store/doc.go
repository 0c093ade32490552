/*
Package store 提供行情数据的持久层（三级缓存中的第二级）。

每种数据类型对应一张表 md_<data_type>，以 (entity_code, params_key)
为唯一键覆盖写入，payload 存储规范化记录的 JSON。GormStore 同时
支持 PostgreSQL、MySQL 与 SQLite。
*/
package store
