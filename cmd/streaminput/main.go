// ABOUTME: CLI harness for the HTTP streaming input subsystem
// ABOUTME: Opens a URL, drains it, logs tag changes, serves /stats and /healthz
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harper/httpstreaminput/internal/application/config"
	"github.com/harper/httpstreaminput/internal/infrastructure/debug"
	"github.com/harper/httpstreaminput/internal/infrastructure/input"
	"github.com/harper/httpstreaminput/internal/infrastructure/reactor"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run() error {
	var (
		cfgPath    = flag.String("config", "", "path to config.yaml (optional)")
		debugAddr  = flag.String("debug-addr", "", "address to serve /stats and /healthz on (optional)")
		outputPath = flag.String("out", "", "file to write the audio stream to (default: discard)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: streaminput [flags] <http-url>")
	}
	url := flag.Arg(0)

	var cfg *config.Config
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	} else {
		cfg = &config.Config{}
	}

	r := reactor.New(cfg.ToTransferOptions(), log.Default(), cfg.MaxConcurrent())
	r.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint
		log.Println("shutting down...")
		cancel()
	}()

	if *debugAddr != "" {
		srv := &nethttp.Server{
			Addr:    *debugAddr,
			Handler: debug.NewMux(r),
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}
		go func() {
			log.Printf("debug server listening on http://%s", *debugAddr)
			if err := srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
				log.Printf("debug server: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	out := io.Discard
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	src, err := input.Open(url, r, cfg.ToWatermarks())
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer src.Close()

	log.Printf("streaming %s (mime=%s size=%d seekable=%v)", url, src.MIME(), src.Size(), src.Seekable())

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			return nil
		default:
		}

		if t, ok := src.Tag(); ok {
			log.Printf("tag: title=%q name=%q", t.Title(), t.Name())
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				r.Shutdown()
				return fmt.Errorf("write output: %w", err)
			}
		}
		if readErr != nil {
			r.Shutdown()
			if readErr == io.EOF {
				log.Println("stream ended")
				return nil
			}
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}
