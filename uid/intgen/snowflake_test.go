package intgen

import (
	"sync"
	"testing"

	"github.com/hatlonely/crudx/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSnowflakeGenerator(t *testing.T) {
	Convey("SnowflakeGenerator", t, func() {
		machineID := int64(7)
		g := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{MachineID: &machineID})

		Convey("并发生成不重复且包含机器号", func() {
			var mu sync.Mutex
			seen := map[int64]struct{}{}
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 1000; j++ {
						id := g.Generate()
						mu.Lock()
						seen[id] = struct{}{}
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(len(seen), ShouldEqual, 8000)
			for id := range seen {
				So(id, ShouldBeGreaterThan, 0)
				So(id>>machineIDShift&maxMachineID, ShouldEqual, 7)
				break
			}
		})

		Convey("单调递增", func() {
			prev := g.Generate()
			for i := 0; i < 10000; i++ {
				id := g.Generate()
				So(id > prev, ShouldBeTrue)
				prev = id
			}
		})

		Convey("机器号取低 10 位", func() {
			big := int64(1<<10 + 3)
			g := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{MachineID: &big})
			So(g.Generate()>>machineIDShift&maxMachineID, ShouldEqual, 3)
		})

		Convey("通过 ref 创建", func() {
			gen, err := NewIntGeneratorWithOptions(&ref.TypeOptions{
				Namespace: "github.com/hatlonely/crudx/uid/intgen",
				Type:      "SnowflakeGenerator",
			})
			So(err, ShouldBeNil)
			So(gen.Generate(), ShouldBeGreaterThan, 0)
		})
	})
}
