// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 stockrag 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的测试基础设施，
避免重复搭建 Redis、数据库与样例数据。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext
  - 存储基础设施: NewSQLiteDB（纯 Go 内存 sqlite）与
    NewMiniRedisCache（miniredis + cache.Manager）
  - 等待与断言: AssertEventuallyTrue / WaitFor / WaitForChannel

# 子包

  - testutil/mocks: MockProvider（行情数据源）与 MockEmbedder（向量化），
    支持预置响应、错误注入与调用计数
  - testutil/fixtures: 各数据类型的原始数据源样例与规范化记录

# 使用示例

	ctx := testutil.TestContext(t)
	db := testutil.NewSQLiteDB(t)
	prov := mocks.NewMockProvider().WithRecord(market.Financial, "600519", rec)
*/
package testutil
