// Package timelinectl queries a running timeline service from the command
// line and prints the response as JSON.
package timelinectl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	entrypoint "github.com/louisbranch/residency/internal/platform/cmd"
	"github.com/louisbranch/residency/internal/platform/discovery"
	platformgrpc "github.com/louisbranch/residency/internal/platform/grpc"
	"github.com/louisbranch/residency/internal/platform/timeouts"
	apimetadata "github.com/louisbranch/residency/internal/services/timeline/api/grpc/metadata"
	timelineservice "github.com/louisbranch/residency/internal/services/timeline/api/grpc/timeline"
)

// Config holds timelinectl configuration. Env tags are read under the
// RESIDENCY_TIMELINECTL_ prefix.
type Config struct {
	Addr     string `env:"ADDR"`
	Locale   string `env:"LOCALE"`
	Method   string
	Kind     string
	ID       string
	Start    string
	End      string
	At       string
	TieBreak string
	Filter   string
	PageSize int
	Token    string
	Timeout  time.Duration
}

// ParseConfig parses environment and flags into Config. The first positional
// argument names the method: timeline, conflicts, occupants, residents or
// events.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, "TIMELINECTL"); err != nil {
		return Config{}, err
	}
	cfg.Addr = discovery.OrDefaultGRPCAddr(cfg.Addr, discovery.ServiceTimeline)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "timeline service address")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for error messages")
	fs.StringVar(&cfg.Kind, "kind", "resource", "subject kind (resident, resource)")
	fs.StringVar(&cfg.ID, "id", "", "resident or resource id")
	fs.StringVar(&cfg.Start, "start", "", "range start (RFC 3339)")
	fs.StringVar(&cfg.End, "end", "", "range end (RFC 3339, default now)")
	fs.StringVar(&cfg.At, "at", "", "instant for occupants (RFC 3339, default now)")
	fs.StringVar(&cfg.TieBreak, "tie-break", "", "override the service tie-break policy")
	fs.StringVar(&cfg.Filter, "filter", "", "AIP-160 event filter")
	fs.IntVar(&cfg.PageSize, "page-size", 0, "page size for listings")
	fs.StringVar(&cfg.Token, "page-token", "", "page token for listings")
	fs.DurationVar(&cfg.Timeout, "timeout", timeouts.GRPCRequest, "request timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if fs.NArg() != 1 {
		return Config{}, errors.New("usage: timelinectl [flags] timeline|conflicts|occupants|residents|events")
	}
	cfg.Method = strings.ToLower(fs.Arg(0))
	return cfg, nil
}

type call func(*timelineservice.Client, context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)

func (c Config) request() (call, map[string]any, error) {
	optional := func(fields map[string]any, key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fields[key] = value
		}
	}
	fields := map[string]any{}
	switch c.Method {
	case "timeline":
		fields["kind"] = c.Kind
		fields["id"] = c.ID
		optional(fields, "start", c.Start)
		optional(fields, "end", c.End)
		optional(fields, "tie_break", c.TieBreak)
		return (*timelineservice.Client).GetTimeline, fields, nil
	case "conflicts":
		fields["resource_id"] = c.ID
		optional(fields, "start", c.Start)
		optional(fields, "end", c.End)
		optional(fields, "tie_break", c.TieBreak)
		return (*timelineservice.Client).GetConflicts, fields, nil
	case "occupants":
		fields["resource_id"] = c.ID
		optional(fields, "at", c.At)
		return (*timelineservice.Client).ListCurrentOccupants, fields, nil
	case "residents":
		fields["page_size"] = c.PageSize
		optional(fields, "page_token", c.Token)
		return (*timelineservice.Client).ListResidents, fields, nil
	case "events":
		fields["page_size"] = c.PageSize
		optional(fields, "filter", c.Filter)
		optional(fields, "page_token", c.Token)
		return (*timelineservice.Client).ListEvents, fields, nil
	default:
		return nil, nil, fmt.Errorf("unknown method %q", c.Method)
	}
}

// Run performs one call and writes the response to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	invoke, fields, err := cfg.request()
	if err != nil {
		return err
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	conn, err := platformgrpc.DialWithHealth(ctx, cfg.Addr, cfg.Timeout, log.Printf)
	if err != nil {
		return err
	}
	defer conn.Close()

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if locale := strings.TrimSpace(cfg.Locale); locale != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, apimetadata.LocaleHeader, locale)
	}
	resp, err := invoke(timelineservice.NewClient(conn), callCtx, in)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Method, err)
	}
	body, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}
