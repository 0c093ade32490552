/*
Package scheduler 维护自选列表（watchlist），并按优先级定期把其中的
(证券代码, 数据类型) 组合送入 RAG 同步流水线。

Processor 先合并去重所有数据对，按 BatchSize 切分子批次；每个子批次
以有限并发预取数据，再交给 rag.SyncProcessor.SyncBatch 顺序同步。单个
数据对失败只记录到 Report.Failures，不会中断整轮处理。每轮结束后为
涉及的列表累加当天的访问统计（访问次数、缓存命中率、平均延迟）。

Scheduler 在单个 goroutine 内运行：定时取出到期列表（优先级 1 最先，
同优先级最久未运行的优先），响应 Trigger 的即时请求，并周期性清理
超过保留期的废弃版本。
*/
package scheduler
