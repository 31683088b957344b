// ABOUTME: Single I/O-goroutine owner of the live-stream set; drives per-transfer HTTP pumps
// ABOUTME: Exposes Register/Abort/RequestResume as a call-and-wait trampoline to other goroutines
package reactor

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/harper/httpstreaminput/internal/domain/stream"
	"github.com/harper/httpstreaminput/internal/domain/streamerr"
)

// command is one trampolined closure plus its completion signal.
type command struct {
	fn   func()
	done chan struct{}
}

// entry is the reactor's bookkeeping for one live transfer: the cancel
// func that tears it down, the channel its pump waits on while paused,
// and a channel closed when the pump goroutine has actually exited.
type entry struct {
	s        *stream.Stream
	cancel   context.CancelFunc
	resumeCh chan struct{}
	done     chan struct{}
}

// Reactor is the process-wide singleton of §3: it owns the set of live
// streams and is the only component that mutates HTTP-client-side
// registration state. All mutation of that state flows through the
// single run() goroutine via the trampoline; the actual byte transfer
// for each stream runs on its own pump goroutine, reflecting Go's
// goroutine-per-request HTTP client rather than libcurl's multi-handle.
type Reactor struct {
	opts          TransferOptions
	logger        *log.Logger
	sem           *semaphore.Weighted
	statsInterval time.Duration

	streams map[uuid.UUID]*entry

	cmds   chan command
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Reactor. maxConcurrent bounds how many HTTP transfers
// may be registered at once; 0 defaults to 64.
func New(opts TransferOptions, logger *log.Logger, maxConcurrent int64) *Reactor {
	if logger == nil {
		logger = log.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		opts:          opts,
		logger:        logger,
		sem:           semaphore.NewWeighted(maxConcurrent),
		statsInterval: 30 * time.Second,
		streams:       make(map[uuid.UUID]*entry),
		cmds:          make(chan command),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the reactor's single I/O goroutine.
func (r *Reactor) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Reactor) run() {
	defer r.wg.Done()

	tick := time.NewTicker(clampPollInterval(r.statsInterval, 30*time.Second))
	defer tick.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case c := <-r.cmds:
			c.fn()
			close(c.done)
		case <-tick.C:
			r.logger.Printf("reactor: %d active stream(s)", len(r.streams))
		}
	}
}

// call is the cross-thread trampoline (§4.5/Design Notes option (a)):
// ship a closure to the reactor goroutine and block until it has run.
func (r *Reactor) call(fn func()) {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- c:
		<-c.done
	case <-r.ctx.Done():
	}
}

// Shutdown aborts every live stream and stops the reactor goroutine.
func (r *Reactor) Shutdown() {
	r.AbortAll(fmt.Errorf("reactor shutting down"))
	r.cancel()
	r.wg.Wait()
}

// Register implements stream.Controller: it acquires a slot in the
// concurrency bound, builds the per-transfer client and request
// (§4.5's per-transfer setup), registers the stream in the live set via
// the trampoline, and spawns its pump goroutine. It returns once setup
// is complete; it does not wait for headers.
func (r *Reactor) Register(s *stream.Stream, rangeFrom int64) error {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		return &streamerr.SetupError{Op: "acquire transfer slot", Err: err}
	}

	client, err := newClient(r.opts)
	if err != nil {
		r.sem.Release(1)
		return &streamerr.SetupError{Op: "build client", Err: err}
	}

	req, err := buildRequest(s.URI(), rangeFrom, r.opts)
	if err != nil {
		r.sem.Release(1)
		return &streamerr.SetupError{Op: "build request", Err: err}
	}

	transferCtx, cancel := context.WithCancel(r.ctx)
	e := &entry{s: s, cancel: cancel, resumeCh: make(chan struct{}, 1), done: make(chan struct{})}

	r.call(func() {
		r.streams[s.ID()] = e
	})

	s.BeginTransfer()
	go r.runPump(transferCtx, e, client, req)
	return nil
}

// Abort implements stream.Controller: it unregisters s from the live
// set and blocks until its pump goroutine has actually exited.
func (r *Reactor) Abort(s *stream.Stream) {
	var e *entry
	r.call(func() {
		if en, ok := r.streams[s.ID()]; ok {
			en.cancel()
			delete(r.streams, s.ID())
			e = en
		}
	})
	if e != nil {
		<-e.done
		r.sem.Release(1)
	}
}

// RequestResume implements stream.Controller: fire-and-forget wake of
// the stream's pump, if it's currently registered and waiting.
func (r *Reactor) RequestResume(s *stream.Stream) {
	r.call(func() {
		if e, ok := r.streams[s.ID()]; ok {
			select {
			case e.resumeCh <- struct{}{}:
			default:
			}
		}
	})
}

// runPump drives one stream's HTTP transfer body to completion. Pause
// is implemented by simply not calling Read again, the natural
// equivalent, in a goroutine-per-request client, of returning the
// "pause this transfer" sentinel from a write callback.
func (r *Reactor) runPump(ctx context.Context, e *entry, client *http.Client, req *http.Request) {
	defer close(e.done)
	s := e.s

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		s.SetError(&streamerr.TransportError{URI: s.URI(), Err: err})
		return
	}
	defer resp.Body.Close()

	// client.Do has already returned, so nothing else watches ctx from
	// here on: req.WithContext only aborted DialContext/RoundTrip, not a
	// blocked Read on the body. A cancelled transfer (Abort/AbortAll/
	// Shutdown) must still force a stuck Read to return, so close the
	// body ourselves the moment ctx is done.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			resp.Body.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.SetError(&streamerr.HTTPStatusError{URI: s.URI(), Status: resp.StatusCode})
		return
	}

	for name, vals := range resp.Header {
		for _, v := range vals {
			s.ApplyHeaderLine(name + ": " + v)
		}
	}
	s.HeadersProcessed()

	// One read never exceeds the stream's MaxBuffered, so a chunk offered
	// to an empty buffer always fits and a paused transfer can resume.
	bufSize := 32 * 1024
	if wmMax := s.Watermarks().MaxBuffered; wmMax < bufSize {
		bufSize = wmMax
	}
	buf := make([]byte, bufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			// OnWrite doesn't consume chunk when it requests a pause, the
			// same way a paused curl write callback leaves its bytes
			// unconsumed for curl to redeliver. The retry below keeps
			// offering the same chunk until it's accepted.
			for s.OnWrite(chunk) {
				select {
				case <-e.resumeCh:
				case <-ctx.Done():
					return
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				s.Complete()
			} else {
				select {
				case <-ctx.Done():
				default:
					s.SetError(&streamerr.TransportError{URI: s.URI(), Err: readErr})
				}
			}
			return
		}
	}
}

// AbortAll fans every live stream's abort out concurrently, latching
// the same cause on each. This is the reactor-wide failure path of
// §4.5: if the HTTP client reports a hard failure affecting every
// transfer, or the reactor is shutting down, every live stream aborts
// together instead of one at a time.
func (r *Reactor) AbortAll(cause error) {
	var entries []*entry
	r.call(func() {
		for id, e := range r.streams {
			entries = append(entries, e)
			delete(r.streams, id)
		}
	})

	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			e.s.SetError(&streamerr.TransportError{URI: e.s.URI(), Err: cause})
			e.cancel()
			<-e.done
			r.sem.Release(1)
			return nil
		})
	}
	_ = g.Wait()
}

// Stats is a point-in-time snapshot of the reactor's live-stream set,
// surfaced by the debug server.
type Stats struct {
	ActiveStreams int `json:"active_streams"`
}

// Snapshot reads the current stats through the trampoline, so it never
// races with run()'s own map access.
func (r *Reactor) Snapshot() Stats {
	var n int
	r.call(func() { n = len(r.streams) })
	return Stats{ActiveStreams: n}
}
