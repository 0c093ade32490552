/*
Package provider 定义外部行情数据源（三级缓存中的第三级）。

Provider 只有一个 Fetch 方法；TushareClient 是基于 Tushare Pro
HTTP 协议的实现。NewChain 在其外层依次叠加调用观察、单次调用超时、
进程级令牌桶限流（golang.org/x/time/rate）、指数退避重试与熔断器。
限流等待只受调用方 ctx 约束，不受单次调用超时约束。
*/
package provider
