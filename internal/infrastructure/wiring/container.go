package wiring

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/trace"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability/action"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability/matcher"
	inboundhttp "github.com/sophialabs/mockexpect/internal/infrastructure/inbound/http"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/logsink"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
	"github.com/sophialabs/mockexpect/internal/infrastructure/usecases"
)

const redisPingTimeout = 3 * time.Second

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	RootDir             string
	TraceSize           int
	LogBufferSize       int
	LogFile             string
	RedisAddr           string
	RedisKeyPrefix      string
	RedisMaxLen         int64
	CapabilityCacheSize int
	DefaultEngine       string // "" = static, "expr", "jinja2"
	Server              inboundhttp.Options
	Logger              ports.Logger
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger    ports.Logger
	server    *inboundhttp.Server
	store     *filesystem.Store
	reloadUC  *usecases.ReloadExpectationsUseCase
	logs      *logsink.Memory
	async     *logsink.Async
	traceBuf  *trace.RingBuffer[trace.Entry]
	closeOnce sync.Once
	closeErr  error
}

// New constructs all infrastructure components. Fallible operations (store,
// log files, redis) run before the asynchronous log writer starts, so an early
// failure leaks no goroutine.
func New(p Params) (*Container, error) {
	if _, err := os.Stat(p.RootDir); err != nil {
		return nil, fmt.Errorf("failed to access root directory: %w", err)
	}

	clk := clock.New()
	store, err := filesystem.NewStore(p.RootDir, clk, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load expectations: %w", err)
	}

	writers, redisSink, err := openWriters(p)
	if err != nil {
		return nil, err
	}

	templates := template.NewRegistry()
	matchers := matcher.NewRegistry(p.CapabilityCacheSize)
	actions := action.NewRegistry(action.Options{
		Clock:         clk,
		Templates:     templates,
		BodyRoot:      p.RootDir,
		DefaultEngine: p.DefaultEngine,
		CacheSize:     p.CapabilityCacheSize,
	})

	logs := logsink.NewMemory(p.LogBufferSize)
	var sink dispatch.LogSink = logs
	var async *logsink.Async
	if len(writers) > 0 {
		async = logsink.NewAsync(p.LogBufferSize, p.Logger, writers...)
		sink = logsink.Multi{logs, async}
	}

	traceBuf := trace.NewRingBuffer[trace.Entry](p.TraceSize)
	engine := dispatch.NewEngine(matchers, actions, sink, clk, p.Logger)

	handleUC := usecases.NewHandleRequestUseCase(store, engine, clk, p.Logger, traceBuf)
	manageUC := usecases.NewManageExpectationsUseCase(store, matchers, actions, p.Logger)
	reloadUC := usecases.NewReloadExpectationsUseCase(store, actions, p.Logger)

	server := inboundhttp.NewServer(handleUC, manageUC, reloadUC, logs, clk, p.Logger, p.Server)
	if redisSink != nil {
		server.SetDurableLogs(redisSink)
	}

	return &Container{
		logger:   p.Logger,
		server:   server,
		store:    store,
		reloadUC: reloadUC,
		logs:     logs,
		async:    async,
		traceBuf: traceBuf,
	}, nil
}

// openWriters opens the optional durable log sinks.
func openWriters(p Params) ([]logsink.Writer, *logsink.Redis, error) {
	var writers []logsink.Writer
	closeAll := func() {
		for _, w := range writers {
			if c, ok := w.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
	}

	if p.LogFile != "" {
		f, err := logsink.OpenFile(p.LogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}

	var redisSink *logsink.Redis
	if p.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: p.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", p.RedisAddr, err)
		}
		redisSink = logsink.NewRedis(client, p.RedisKeyPrefix, p.RedisMaxLen)
		writers = append(writers, redisSink)
	}

	return writers, redisSink, nil
}

// Close drains pending log entries and releases durable sinks. It is
// idempotent.
func (c *Container) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.async != nil {
			c.closeErr = c.async.Close(ctx)
		}
	})
	return c.closeErr
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP mock server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Store returns the file-backed expectation store.
func (c *Container) Store() *filesystem.Store {
	return c.store
}

// ReloadUseCase returns the use case that re-reads expectation files.
func (c *Container) ReloadUseCase() *usecases.ReloadExpectationsUseCase {
	return c.reloadUC
}

// Logs returns the in-memory log sink.
func (c *Container) Logs() *logsink.Memory {
	return c.logs
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer[trace.Entry] {
	return c.traceBuf
}
