package rag

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// 任意 创建/向量化/失败/激活 序列之后：
// 每个分区至多一个 active；active 版本一定是最后一次成功激活的版本；
// 相同内容在存在未失败版本时不会重复建版本。
func TestProperty_AtMostOneActivePerPartition(t *testing.T) {
	codes := []string{"600519", "000001"}

	rapid.Check(t, func(rt *rapid.T) {
		vm, _, clock := newTestManager(t)
		ctx := context.Background()

		lastActivated := map[string]string{}
		var ids []string

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			clock.Advance(1)
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				code := rapid.SampledFrom(codes).Draw(rt, "code")
				content := rapid.IntRange(1, 4).Draw(rt, "content")
				ref, err := vm.CreateVersion(ctx, code, market.Financial, financialRecord(float64(content)))
				if err != nil {
					rt.Fatalf("create: %v", err)
				}
				if ref.Created {
					ids = append(ids, ref.ID)
				}
			case 1:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "vectorize")
				err := vm.UpdateVectorStatus(ctx, id, StatusVectorized, nil, nil)
				if err != nil && !types.IsErrorCode(err, types.ErrInvalidStateTransition) {
					rt.Fatalf("vectorize: %v", err)
				}
			case 2:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "fail")
				err := vm.UpdateVectorStatus(ctx, id, StatusFailed, nil, nil)
				if err != nil && !types.IsErrorCode(err, types.ErrInvalidStateTransition) {
					rt.Fatalf("fail: %v", err)
				}
			case 3:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "activate")
				v, err := vm.GetVersion(ctx, id)
				if err != nil {
					rt.Fatalf("get: %v", err)
				}
				ok, err := vm.ActivateVersion(ctx, id)
				switch {
				case err == nil && ok:
					lastActivated[v.EntityCode] = id
				case types.IsErrorCode(err, types.ErrActivationConflict):
				default:
					rt.Fatalf("activate %s: ok=%v err=%v", id, ok, err)
				}
			}

			for _, code := range codes {
				list, err := vm.ListVersions(ctx, code, market.Financial)
				if err != nil {
					rt.Fatalf("list: %v", err)
				}
				active := 0
				live := map[string]int{}
				for _, v := range list {
					if v.IsActive() {
						active++
						if v.VersionID != lastActivated[code] {
							rt.Fatalf("active %s, last activated %s", v.VersionID, lastActivated[code])
						}
					}
					if v.Status != StatusFailed && v.Status != StatusDeprecated {
						live[v.ContentHash]++
					}
				}
				if active > 1 {
					rt.Fatalf("partition %s has %d active versions", code, active)
				}
				for hash, n := range live {
					if n > 1 {
						rt.Fatalf("content %s has %d live versions", hash[:8], n)
					}
				}
			}
		}
	})
}
