// Command streamload opens many concurrent subscriptions to the vault event
// stream and reports connection and delivery counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	url         string
	conns       int
	duration    time.Duration
	rampUp      time.Duration
	lastEventID string
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "url", "http://localhost:8080/events/stream", "event stream URL")
	flag.IntVar(&opts.conns, "conns", 500, "number of concurrent subscriptions")
	flag.DurationVar(&opts.duration, "dur", time.Minute, "test duration (0 for until interrupted)")
	flag.DurationVar(&opts.rampUp, "ramp", 0, "spread connection starts across this window")
	flag.StringVar(&opts.lastEventID, "after", "", "Last-Event-ID sent by every subscriber")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if opts.conns <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", opts.conns))
	}
	if opts.rampUp == 0 && opts.conns > 100 {
		// 1 second per 500 connections, at least 1 second
		opts.rampUp = max(time.Duration(opts.conns/500)*time.Second, time.Second)
		logger.Info("using default ramp-up", zap.Duration("ramp", opts.rampUp))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	s := newStats()
	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     opts.conns + 100,
		MaxIdleConnsPerHost: opts.conns + 100,
		DisableCompression:  true,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}}

	logger.Info("starting stream load",
		zap.String("url", opts.url), zap.Int("conns", opts.conns),
		zap.Duration("duration", opts.duration), zap.Duration("ramp", opts.rampUp))

	start := time.Now()
	go report(ctx, logger, s, start)

	var g errgroup.Group
	interval := opts.rampUp / time.Duration(opts.conns)
	for i := 0; i < opts.conns && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		g.Go(func() error {
			subscribe(ctx, client, opts, s)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	snap := s.snapshot()
	fmt.Printf("done: %s elapsed=%s events/s=%.2f\n", snap, elapsed.Truncate(time.Millisecond),
		float64(snap.events)/elapsed.Seconds())
	for typ, n := range snap.byType {
		fmt.Printf("  %s: %d\n", typ, n)
	}
	if snap.connectErrs > 0 {
		os.Exit(1)
	}
}

func subscribe(ctx context.Context, client *http.Client, opts options, s *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.url, nil)
	if err != nil {
		s.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if opts.lastEventID != "" {
		req.Header.Set("Last-Event-ID", opts.lastEventID)
	}

	resp, err := client.Do(req)
	if err != nil {
		s.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.connectErrs.Add(1)
		return
	}

	s.connected.Add(1)
	if err := readStream(resp.Body, s.observe); err != nil && ctx.Err() == nil {
		s.streamErrs.Add(1)
	}
}

func report(ctx context.Context, logger *zap.Logger, s *stats, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("status",
				zap.Stringer("stats", s.snapshot()),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
