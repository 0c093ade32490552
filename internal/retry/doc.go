// Package retry 提供带指数退避与随机抖动的重试器。
//
// 默认只重试 types.IsRetryable 判定为可重试的错误（数据源 5xx、超时、限流），
// 校验类错误立即返回。
package retry
