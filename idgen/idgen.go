// Package idgen 为未携带请求 ID 的消息生成请求 ID.
// 默认使用 Snowflake，可配置为 Sonyflake；生成失败时退化为 UUID，保证请求 ID 永不为空.
package idgen

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/sony/sonyflake"
	"github.com/wyfcoding/cqrskit/config"
)

var (
	ErrUnsupportedType  = errors.New("unsupported id generator type")
	ErrParseTime        = errors.New("failed to parse start time")
	ErrInvalidMachineID = errors.New("machine id out of range")
)

const (
	dateLayout       = "2006-01-02"
	maxSonyflakeNode = 1<<16 - 1
)

// Generator 生成单调递增的 64 位 ID.
type Generator interface {
	NextID() (int64, error)
}

type snowflakeGenerator struct {
	node *snowflake.Node
}

func (g snowflakeGenerator) NextID() (int64, error) {
	return g.node.Generate().Int64(), nil
}

type sonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func (g sonyflakeGenerator) NextID() (int64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, err
	}
	return int64(id), nil //nolint:gosec // sonyflake ID 只占用 63 位
}

func startTime(cfg config.SnowflakeConfig) (time.Time, bool, error) {
	if cfg.StartTime == "" {
		return time.Time{}, false, nil
	}
	st, err := time.Parse(dateLayout, cfg.StartTime)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %w", ErrParseTime, err)
	}
	return st, true, nil
}

// NewGenerator 根据 snowflake.type 创建生成器，空值表示 snowflake.
func NewGenerator(cfg config.SnowflakeConfig) (Generator, error) {
	st, hasStart, err := startTime(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", "snowflake":
		if maxNode := int64(1)<<snowflake.NodeBits - 1; cfg.MachineID < 0 || cfg.MachineID > maxNode {
			return nil, fmt.Errorf("%w: %d", ErrInvalidMachineID, cfg.MachineID)
		}
		if hasStart {
			snowflake.Epoch = st.UnixMilli()
		}
		node, err := snowflake.NewNode(cfg.MachineID)
		if err != nil {
			return nil, fmt.Errorf("create snowflake node: %w", err)
		}
		slog.Info("request id generator initialized", "type", "snowflake", "machine_id", cfg.MachineID)
		return snowflakeGenerator{node: node}, nil

	case "sonyflake":
		if cfg.MachineID < 0 || cfg.MachineID > maxSonyflakeNode {
			return nil, fmt.Errorf("%w: %d", ErrInvalidMachineID, cfg.MachineID)
		}
		machineID := uint16(cfg.MachineID) //nolint:gosec // 已做范围校验
		settings := sonyflake.Settings{MachineID: func() (uint16, error) { return machineID, nil }}
		if hasStart {
			settings.StartTime = st
		}
		sf, err := sonyflake.New(settings)
		if err != nil {
			return nil, fmt.Errorf("create sonyflake: %w", err)
		}
		slog.Info("request id generator initialized", "type", "sonyflake", "machine_id", cfg.MachineID)
		return sonyflakeGenerator{sf: sf}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

var (
	mu        sync.RWMutex
	generator Generator
)

// Init 安装进程级默认生成器，可重复调用以替换.
func Init(cfg config.SnowflakeConfig) error {
	g, err := NewGenerator(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	generator = g
	mu.Unlock()
	return nil
}

func current() Generator {
	mu.RLock()
	g := generator
	mu.RUnlock()
	if g != nil {
		return g
	}

	mu.Lock()
	defer mu.Unlock()
	if generator == nil {
		g, err := NewGenerator(config.SnowflakeConfig{MachineID: 1})
		if err != nil {
			slog.Error("default request id generator unavailable", "error", err)
			return nil
		}
		generator = g
	}
	return generator
}

// NewRequestID 生成新的请求 ID. 生成器不可用或失败时使用 UUID.
func NewRequestID() string {
	if g := current(); g != nil {
		id, err := g.NextID()
		if err == nil {
			return strconv.FormatInt(id, 10)
		}
		slog.Warn("request id generator failed, falling back to uuid", "error", err)
	}
	return uuid.NewString()
}
