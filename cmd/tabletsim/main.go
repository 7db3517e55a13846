// Package main replays tablet traffic against the fusion controller's TCP
// channel: whole frames, frames split across writes, truncated frames and
// frames sent back to back.
//
// Without -cases it reads case numbers (1-4) from stdin, one per line, until
// EOF. With -cases it sends the listed cases -repeat times and exits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/c360/sensorfusion/pkg/retry"
)

type cliConfig struct {
	Host     string
	Port     int
	Cases    string
	Repeat   int
	Interval time.Duration
	Seed     uint64
	Options
}

func main() {
	cfg := parseFlags()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "tabletsim")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, os.Stdin, logger); err != nil {
		logger.Error("tabletsim failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() cliConfig {
	var cfg cliConfig
	flag.StringVar(&cfg.Host, "host", "127.0.0.1", "Controller host")
	flag.IntVar(&cfg.Port, "port", 8051, "Controller tablet port")
	flag.BoolVar(&cfg.Newline, "newline", false, "Terminate every frame with a newline")
	flag.IntVar(&cfg.MinChunk, "min-chunk", 1, "Fewest writes a fragmented frame is split into")
	flag.IntVar(&cfg.MaxChunk, "max-chunk", 16, "Most writes a fragmented frame is split into")
	flag.DurationVar(&cfg.Jitter, "jitter", 5*time.Millisecond, "Upper bound of the pause between fragments")
	flag.StringVar(&cfg.Cases, "cases", "", "Comma separated cases to send instead of reading stdin, e.g. 1,2,4")
	flag.IntVar(&cfg.Repeat, "repeat", 1, "Times to send the -cases list")
	flag.DurationVar(&cfg.Interval, "interval", 100*time.Millisecond, "Pause between cases with -cases")
	flag.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg cliConfig, stdin io.Reader, logger *slog.Logger) error {
	sim, err := NewSimulator(cfg.Options, cfg.Seed)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	link := &link{addr: addr, logger: logger}
	defer link.close()

	if cfg.Cases != "" {
		cases, err := parseCases(cfg.Cases)
		if err != nil {
			return err
		}
		for i := 0; i < cfg.Repeat; i++ {
			for _, c := range cases {
				if err := link.send(ctx, sim, c); err != nil {
					return err
				}
				if err := retry.Wait(ctx, cfg.Interval); err != nil {
					return nil
				}
			}
		}
		return nil
	}

	fmt.Fprintln(os.Stderr, "1=atomic 2=fragmented 3=incomplete 4=coalesced; res cycles 0,1,2,99; Ctrl+D exits")
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		c, err := ParseCase(strings.TrimSpace(scanner.Text()))
		if err != nil {
			logger.Warn("ignored input", "error", err)
			continue
		}
		if err := link.send(ctx, sim, c); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseCases(list string) ([]Case, error) {
	var out []Case
	for _, part := range strings.Split(list, ",") {
		c, err := ParseCase(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// link is a lazily dialled connection that is dropped on the first write
// error and redialled on the next send.
type link struct {
	addr   string
	logger *slog.Logger
	conn   net.Conn
}

func (l *link) send(ctx context.Context, sim *Simulator, c Case) error {
	if l.conn == nil {
		if err := l.dial(ctx); err != nil {
			return err
		}
	}

	r, err := sim.Send(l.conn, c)
	if err != nil {
		l.logger.Warn("connection lost", "case", c.String(), "error", err)
		l.close()
		return nil
	}
	l.logger.Info("sent", "case", r.Case.String(), "res", r.Res, "seq_no", r.SeqNos,
		"bytes", r.Bytes, "chunks", r.Chunks)
	return nil
}

// dial retries every second until connected or ctx ends.
func (l *link) dial(ctx context.Context) error {
	cfg := retry.Config{
		MaxAttempts:  math.MaxInt32,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	}
	d := net.Dialer{Timeout: 3 * time.Second}
	err := retry.Do(ctx, cfg, func() error {
		conn, err := d.DialContext(ctx, "tcp", l.addr)
		if err != nil {
			l.logger.Warn("connect failed, retrying", "addr", l.addr, "error", err)
			return err
		}
		l.conn = conn
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("connected", "addr", l.addr)
	return nil
}

func (l *link) close() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}
