// Package bootstrap 把配置、日志、ID 生成、指标与追踪装配成一组共享注册表的总线.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/wyfcoding/cqrskit/config"
	"github.com/wyfcoding/cqrskit/cqrs"
	"github.com/wyfcoding/cqrskit/eventbus"
	"github.com/wyfcoding/cqrskit/idgen"
	"github.com/wyfcoding/cqrskit/logging"
	"github.com/wyfcoding/cqrskit/metrics"
	"github.com/wyfcoding/cqrskit/middleware"
	"github.com/wyfcoding/cqrskit/tracing"

	"google.golang.org/grpc"
)

// Bootstrapper 持有进程级基础设施.
type Bootstrapper struct {
	Config    *config.Config
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Registry  *cqrs.Registry
	lifecycle *Lifecycle
	version   string

	mu        sync.Mutex
	observers []*cqrs.Observer
}

// Buses 三条总线，构造时冻结注册表.
type Buses struct {
	Commands *cqrs.InMemCommandBus
	Queries  *cqrs.InMemQueryBus
	Events   *eventbus.LocalBus
}

// New 创建引导器. 调用 Initialize 之前只持有空注册表.
func New(version string) *Bootstrapper {
	return &Bootstrapper{
		version:  version,
		Registry: cqrs.NewRegistry(),
	}
}

// Initialize 加载配置文件并依次初始化日志、ID 生成器、指标与追踪.
func (b *Bootstrapper) Initialize(ctx context.Context, path string) error {
	cfg := &config.Config{}
	if err := config.Load(path, cfg); err != nil {
		return err
	}
	return b.InitializeWith(ctx, cfg)
}

// InitializeWith 使用已加载的配置完成初始化.
func (b *Bootstrapper) InitializeWith(ctx context.Context, cfg *config.Config) error {
	b.Config = cfg
	b.Logger = logging.NewFromConfig(logging.Config{
		Service:    cfg.Service.Name,
		Module:     "bootstrap",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Console:    cfg.Log.Console,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logging.SetDefault(b.Logger)
	b.lifecycle = NewLifecycle(b.Logger.Logger)
	config.PrintWithMask(cfg)

	if err := idgen.Init(cfg.Snowflake); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	if cfg.Metrics.Enabled || cfg.Bus.Metrics {
		b.Metrics = metrics.NewMetrics(cfg.Service.Name)
		b.Metrics.RegisterBuildInfo(cfg.Service.Name, b.version)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port != "" {
		stop := b.Metrics.Expose(cfg.Metrics.Port, cfg.Metrics.Path)
		b.lifecycle.Append(Hook{Name: "metrics", OnStop: func(context.Context) error {
			stop()
			return nil
		}})
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Service.Name
	}
	shutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	b.lifecycle.Append(Hook{Name: "tracing", OnStop: shutdown})

	config.RegisterReloadHook(b.applyBusConfig)

	b.Logger.Info("bootstrap initialized",
		"service", cfg.Service.Name, "environment", cfg.Service.Environment, "version", b.version)
	return nil
}

// Options 返回由配置派生的总线观测选项.
func (b *Bootstrapper) Options() []cqrs.Option {
	if b.Config == nil {
		return nil
	}
	opts := cqrs.OptionsFromConfig(b.Config.Bus, b.Metrics)
	if b.Logger != nil {
		opts = append(opts, cqrs.WithLogger(b.Logger.With("module", "cqrs")))
	}
	return opts
}

// Buses 基于注册表构造三条总线. 调用之后注册表不再接受新的处理器.
func (b *Bootstrapper) Buses() Buses {
	opts := b.Options()
	buses := Buses{
		Commands: cqrs.NewInMemCommandBus(b.Registry, opts...),
		Queries:  cqrs.NewInMemQueryBus(b.Registry, opts...),
		Events:   eventbus.NewLocalBus(b.Registry, opts...),
	}
	b.mu.Lock()
	b.observers = append(b.observers, buses.Commands.Observer(), buses.Queries.Observer(), buses.Events.Observer())
	b.mu.Unlock()

	stats := b.Registry.Stats()
	b.Metrics.SetRegisteredHandlers("command", stats.Commands)
	b.Metrics.SetRegisteredHandlers("query", stats.Queries)
	b.Metrics.SetRegisteredHandlers("event", stats.Events)
	if b.Logger != nil {
		b.Logger.Info("buses ready", "commands", stats.Commands, "queries", stats.Queries, "events", stats.Events)
	}
	return buses
}

// applyBusConfig 把热更新后的慢分发阈值下发到已构造的总线.
// 追踪与指标开关只在构造总线时生效.
func (b *Bootstrapper) applyBusConfig(c *config.Config) {
	b.mu.Lock()
	observers := append([]*cqrs.Observer(nil), b.observers...)
	b.mu.Unlock()

	for _, o := range observers {
		o.SetSlowThreshold(c.Bus.SlowThreshold)
	}
	if b.Logger != nil {
		b.Logger.Info("bus slow threshold applied", "slow_threshold", c.Bus.SlowThreshold, "buses", len(observers))
	}
}

// UnaryInterceptors 返回 gRPC 入口使用的拦截器链，令牌使用配置中的密钥校验.
// 使用方式: grpc.NewServer(grpc.ChainUnaryInterceptor(b.UnaryInterceptors()...)).
func (b *Bootstrapper) UnaryInterceptors() []grpc.UnaryServerInterceptor {
	var secret string
	if b.Config != nil {
		secret = b.Config.JWT.Secret
	}
	return middleware.UnaryInterceptors(secret)
}

// OnShutdown 注册额外的退出钩子.
func (b *Bootstrapper) OnShutdown(name string, fn func(ctx context.Context) error) {
	if b.lifecycle == nil {
		b.lifecycle = NewLifecycle(nil)
	}
	b.lifecycle.Append(Hook{Name: name, OnStop: fn})
}

// Shutdown 以注册的逆序释放资源.
func (b *Bootstrapper) Shutdown(ctx context.Context) error {
	if b.lifecycle == nil {
		return nil
	}
	return b.lifecycle.Stop(ctx)
}
