// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 把结构化行情数据转成可检索的向量版本。

每个 (证券代码, 数据类型) 构成一个分区。分区内的数据按内容哈希生成
DataVersion，向量化完成后激活，同一时刻每个分区至多一个 active 版本。
旧版本被标记为 deprecated，其向量保留到清理任务按保留期删除。

# 核心接口/类型

  - VersionManager — DataVersion 生命周期的唯一写入者（创建、状态推进、激活、清理）
  - Vectorizer — 结构化记录 → 中文叙述 → 文本分块，纯函数
  - SyncProcessor — 解析、建版本、向量化、入库、激活的完整流水线
  - Searcher — 只在激活版本中做语义检索
  - VectorIndex — 向量索引接口（MemoryIndex / QdrantIndex）
  - TokenCounter — 分块 token 统计（tiktoken 或字符估算）

# 状态迁移

	pending ──► vectorized ──► active ──► deprecated
	   │            │
	   └────────────┴──► failed

激活在分区锁内完成：进程内按分区加锁，支持行锁的数据库再加 SELECT ... FOR UPDATE。

# 使用方式

	vm := rag.NewVersionManager(db, index, logger)
	vz := rag.NewVectorizer(rag.VectorizerConfigFrom(cfg.RAG), rag.NewTiktokenCounter("", logger), logger)
	sp := rag.NewSyncProcessor(resolver, vm, vz, embedder, index, rag.SyncConfigFrom(cfg.Embedding, cfg.RAG), logger)
	result := sp.SyncEntity(ctx, "600519", market.Financial)
*/
package rag
