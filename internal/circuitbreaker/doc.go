// Package circuitbreaker 提供三态熔断器（closed / open / half_open）。
//
// 连续失败达到阈值后打开，ResetTimeout 后放行有限的试探请求；
// 校验类错误、未找到与调用方取消不计入失败。
package circuitbreaker
