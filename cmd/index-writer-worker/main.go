// Command index-writer-worker drains the write-job queue and applies each
// job to the embedded index, mirroring the teacher's cmd/server shape: parse
// flags, construct backends, run until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery/config"
	"github.com/epokhe/pathery/index"
	"github.com/epokhe/pathery/logging"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
	"github.com/epokhe/pathery/writer"
)

func main() {
	f := &config.Flags{}
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDirectory(flag.CommandLine, f)
	config.RegisterDocStore(flag.CommandLine, f)
	config.RegisterBlobStore(flag.CommandLine, f)
	config.RegisterQueue(flag.CommandLine, f)
	flag.Parse()

	logging.Init(f.LogLevel)

	registry, err := config.LoadSchemaRegistry(f)
	if err != nil {
		log.Fatal().Err(err).Msg("load schema registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := config.OpenQueue(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open queue")
	}
	blobs, err := config.OpenBlobStore(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open blob store")
	}
	docs, err := config.OpenDocStore(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open document store")
	}

	pool := newWriterPool(f, q, registry)
	w := writer.NewWorker(q, blobs, docs, pool.open)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- w.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case err := <-runErrCh:
		if err != nil {
			log.Error().Err(err).Msg("worker stopped")
		}
	}

	cancel()
	pool.closeAll()
}

// writerPool caches one index.Writer per index_id for the lifetime of the
// process, the way a real worker invocation reuses an open writer across
// jobs for the same index rather than reopening it every time.
type writerPool struct {
	flags    *config.Flags
	queue    queue.Queue
	registry *schema.Registry

	mu      sync.Mutex
	writers map[string]*index.Writer
	schemas map[string]*schema.Schema
}

func newWriterPool(f *config.Flags, q queue.Queue, registry *schema.Registry) *writerPool {
	return &writerPool{
		flags:    f,
		queue:    q,
		registry: registry,
		writers:  make(map[string]*index.Writer),
		schemas:  make(map[string]*schema.Schema),
	}
}

func (p *writerPool) open(ctx context.Context, indexID string) (*index.Writer, *schema.Schema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if iw, ok := p.writers[indexID]; ok {
		return iw, p.schemas[indexID], nil
	}

	s, err := p.registry.Load(indexID)
	if err != nil {
		return nil, nil, err
	}
	dir, err := config.OpenDirectory(ctx, p.flags, indexID)
	if err != nil {
		return nil, nil, err
	}
	iw, err := index.Open(ctx, indexID, dir, s, p.queue)
	if err != nil {
		return nil, nil, err
	}

	p.writers[indexID] = iw
	p.schemas[indexID] = s
	return iw, s, nil
}

func (p *writerPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, iw := range p.writers {
		iw.Close()
	}
}
