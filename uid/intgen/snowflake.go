package intgen

import (
	"net"
	"sync/atomic"
	"time"
)

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = 1<<sequenceBits - 1
	maxMachineID = 1<<machineIDBits - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

// 2020-01-01 00:00:00 UTC
var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type SnowflakeOptions struct {
	// 为空时取本机 IPv4 地址低 10 位
	MachineID *int64 `cfg:"machineID"`
}

// SnowflakeGenerator 1 位符号 + 41 位毫秒时间戳 + 10 位机器号 + 12 位序列号
type SnowflakeGenerator struct {
	// 高位为相对 epoch 的时间戳，低 12 位为序列号
	state     atomic.Int64
	machineID int64
}

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) *SnowflakeGenerator {
	machineID := machineIDFromIP()
	if options != nil && options.MachineID != nil {
		machineID = *options.MachineID
	}

	g := &SnowflakeGenerator{machineID: machineID & maxMachineID}
	g.state.Store((time.Now().UnixMilli() - epoch) << sequenceBits)
	return g
}

func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil {
			return int64(ip[2])<<8 | int64(ip[3])
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate() int64 {
	for {
		old := g.state.Load()
		ts, seq := old>>sequenceBits, old&maxSequence

		now := time.Now().UnixMilli() - epoch
		if now <= ts {
			// 同一毫秒或时钟回拨时沿用旧时间戳，序列号用尽则借用下一毫秒
			now, seq = ts, seq+1
			if seq > maxSequence {
				now, seq = ts+1, 0
			}
		} else {
			seq = 0
		}

		if g.state.CompareAndSwap(old, now<<sequenceBits|seq) {
			return now<<timestampShift | g.machineID<<machineIDShift | seq
		}
	}
}
