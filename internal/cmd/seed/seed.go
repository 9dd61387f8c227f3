// Package seed loads JSON-lines event logs into the timeline event store.
//
// Each input line is one record. Event records carry resident_id,
// resource_id, kind, timestamp (RFC 3339) and optionally id,
// source_priority, resident_name and resource_label. A record with a
// "retract" field hides the named event instead:
//
//	{"resident_id":"R1","resource_id":"U1","kind":"assign","timestamp":"2024-04-01T00:00:00Z"}
//	{"retract":"01hw...","reason":"entered twice"}
package seed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/residency/internal/platform/cmd"
	"github.com/louisbranch/residency/internal/services/timeline/changefeed"
	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/storage"
	"github.com/louisbranch/residency/internal/services/timeline/storage/sqlite"
)

const batchSize = 500

// Config holds seed command configuration. Env tags are read under the
// RESIDENCY_SEED_ prefix.
type Config struct {
	DBPath       string   `env:"DB_PATH" envDefault:"data/residency.db"`
	File         string   `env:"FILE" envDefault:"-"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"residency.events.appended"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, "SEED"); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite event store path")
	fs.StringVar(&cfg.File, "file", cfg.File, "JSON-lines event file (- for stdin)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return Config{}, errors.New("db path is required")
	}
	return cfg, nil
}

// Publisher announces appended events.
type Publisher interface {
	Publish(ctx context.Context, events []event.Event) error
}

// Stats summarizes one load.
type Stats struct {
	Appended  int
	Retracted int
	Named     int
}

// Run opens the store and loads cfg.File into it.
func Run(ctx context.Context, cfg Config, stdin io.Reader, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		in := stdin
		if cfg.File != "" && cfg.File != "-" {
			f, err := os.Open(cfg.File)
			if err != nil {
				return fmt.Errorf("open event file: %w", err)
			}
			defer f.Close()
			in = f
		}
		if in == nil {
			return errors.New("no input")
		}

		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close event store: %v", err)
			}
		}()

		var pub Publisher
		if len(cfg.KafkaBrokers) > 0 {
			p, err := changefeed.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				return fmt.Errorf("create change feed publisher: %w", err)
			}
			defer func() {
				if err := p.Close(); err != nil {
					log.Printf("close change feed publisher: %v", err)
				}
			}()
			pub = p
		}

		stats, err := Load(ctx, store, pub, in)
		if err != nil {
			return err
		}
		if out != nil {
			fmt.Fprintf(out, "appended %d events, retracted %d, named %d\n", stats.Appended, stats.Retracted, stats.Named)
		}
		return nil
	})
}

type record struct {
	ID             string `json:"id"`
	ResidentID     string `json:"resident_id"`
	ResourceID     string `json:"resource_id"`
	Kind           string `json:"kind"`
	Timestamp      string `json:"timestamp"`
	SourcePriority int    `json:"source_priority"`
	ResidentName   string `json:"resident_name"`
	ResourceLabel  string `json:"resource_label"`
	Retract        string `json:"retract"`
	Reason         string `json:"reason"`
}

func (r record) event() (event.Event, error) {
	kind, err := event.ParseKind(r.Kind)
	if err != nil {
		return event.Event{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(r.Timestamp))
	if err != nil {
		return event.Event{}, fmt.Errorf("parse timestamp: %w", err)
	}
	evt := event.Event{
		ID:             strings.TrimSpace(r.ID),
		ResidentID:     strings.TrimSpace(r.ResidentID),
		ResourceID:     strings.TrimSpace(r.ResourceID),
		Kind:           kind,
		Timestamp:      ts.UTC(),
		SourcePriority: r.SourcePriority,
	}
	return evt, evt.Validate()
}

// Load appends every record of in to w. Events are appended in batches, so a
// failure part way leaves earlier batches stored. Appended events are
// published when pub is non-nil.
func Load(ctx context.Context, w storage.EventWriter, pub Publisher, in io.Reader) (Stats, error) {
	var stats Stats
	batch := make([]event.Event, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		stored, err := w.AppendEvents(ctx, batch)
		if err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		stats.Appended += len(stored)
		batch = batch[:0]
		if pub != nil {
			if err := pub.Publish(ctx, stored); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}

		if rec.Retract != "" {
			if err := flush(); err != nil {
				return stats, err
			}
			if err := w.RetractEvent(ctx, rec.Retract, rec.Reason); err != nil {
				return stats, fmt.Errorf("line %d: retract %s: %w", line, rec.Retract, err)
			}
			stats.Retracted++
			continue
		}

		evt, err := rec.event()
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if name := strings.TrimSpace(rec.ResidentName); name != "" {
			if err := w.PutResident(ctx, storage.Resident{ID: evt.ResidentID, DisplayName: name}); err != nil {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.Named++
		}
		if label := strings.TrimSpace(rec.ResourceLabel); label != "" {
			if err := w.PutResource(ctx, storage.Resource{ID: evt.ResourceID, Label: label}); err != nil {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.Named++
		}

		batch = append(batch, evt)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, flush()
}
