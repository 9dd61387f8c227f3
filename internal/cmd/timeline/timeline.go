// Package timeline parses timeline service flags and launches the service.
package timeline

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/residency/internal/platform/cmd"
	"github.com/louisbranch/residency/internal/platform/discovery"
	server "github.com/louisbranch/residency/internal/services/timeline/app"
	"github.com/louisbranch/residency/internal/services/timeline/changefeed"
	"github.com/louisbranch/residency/internal/services/timeline/domain/conflict"
)

// Config holds timeline command configuration. Env tags are read under the
// RESIDENCY_TIMELINE_ prefix.
type Config struct {
	Port             int           `env:"PORT"`
	MetricsAddr      string        `env:"METRICS_ADDR" envDefault:":9095"`
	DBPath           string        `env:"DB_PATH" envDefault:"data/residency.db"`
	CacheSize        int           `env:"CACHE_SIZE" envDefault:"512"`
	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"8"`
	TieBreak         string        `env:"TIE_BREAK" envDefault:"escalate"`
	ClockStep        time.Duration `env:"CLOCK_STEP" envDefault:"1m"`
	KafkaBrokers     []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       string        `env:"KAFKA_TOPIC" envDefault:"residency.events.appended"`
	KafkaGroup       string        `env:"KAFKA_GROUP" envDefault:"residency-timeline"`

	policy conflict.Policy
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, "TIMELINE"); err != nil {
		return Config{}, err
	}
	if cfg.Port == 0 {
		cfg.Port = discovery.DefaultPort(discovery.ServiceTimeline)
	}
	brokers := strings.Join(cfg.KafkaBrokers, ",")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The timeline gRPC server port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite event store path")
	fs.StringVar(&cfg.TieBreak, "tie-break", cfg.TieBreak, "Equal-priority overlap policy (escalate, earliest)")
	fs.StringVar(&brokers, "kafka-brokers", brokers, "Comma-separated change feed brokers (empty disables)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.KafkaBrokers = splitList(brokers)

	policy, err := conflict.ParsePolicy(cfg.TieBreak)
	if err != nil {
		return Config{}, err
	}
	cfg.policy = policy
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.CacheSize <= 0 {
		return Config{}, fmt.Errorf("cache size must be positive, got %d", cfg.CacheSize)
	}
	return cfg, nil
}

func (c Config) serverConfig() server.Config {
	return server.Config{
		Addr:             fmt.Sprintf(":%d", c.Port),
		MetricsAddr:      c.MetricsAddr,
		DBPath:           c.DBPath,
		CacheSize:        c.CacheSize,
		BatchConcurrency: c.BatchConcurrency,
		Policy:           c.policy,
		ClockStep:        c.ClockStep,
		ChangeFeed: changefeed.Config{
			Brokers: c.KafkaBrokers,
			Topic:   c.KafkaTopic,
			GroupID: c.KafkaGroup,
		},
	}
}

// Run starts the timeline gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTimeline, func(ctx context.Context) error {
		return server.Run(ctx, cfg.serverConfig())
	})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
