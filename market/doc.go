/*
Package market 定义 A 股市场数据的领域模型。

# 概述

market 不依赖任何基础设施，只描述"是什么"：证券代码（Entity）、
数据类型注册表（DataType）以及经过规范化的数据记录（Record）。
resolver、store、rag 等上层模块都只消费这里的规范化形态。

# 核心类型

  - Entity：6 位数字代码，按前缀推导交易所（SH/SZ/BJ）与板块
  - DataType：封闭的数据类型集合，附带默认缓存 TTL 与记录形态（对象/列表）
  - Record：规范化后的数据记录，列表类数据统一放在 items 字段下

# 主要能力

  - ParseEntity / ValidateCode：代码格式校验
  - Canonicalize：把不同数据源版本的同义字段名映射为统一字段名
  - ContentHash：基于规范化 JSON 的确定性内容哈希
  - CacheKey / ParamsKey：缓存键与查询参数的规范化
*/
package market
