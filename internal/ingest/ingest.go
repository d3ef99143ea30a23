// Package ingest bulk-loads knowledge documents into semantic memory.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/Allreality/my-twin/internal/model"
)

const (
	DefaultWorkers    = 4
	DefaultImportance = 0.6
)

// MemoryWriter stores a semantic memory.
type MemoryWriter interface {
	Store(ctx context.Context, content string, typ model.MemoryType, valence, importance float64) (string, error)
}

// Options configures an Ingester.
type Options struct {
	Workers    int
	Importance float64
	Split      SplitOptions
}

// Report summarizes one ingested document.
type Report struct {
	Source   string   `json:"source"`
	Sections int      `json:"sections"`
	Stored   int      `json:"stored"`
	IDs      []string `json:"ids"`
	Errors   []string `json:"errors,omitempty"`
}

// Ingester splits documents and stores each section as a semantic memory,
// embedding sections concurrently on a bounded pool.
type Ingester struct {
	memories MemoryWriter
	opts     Options
	logger   logrus.FieldLogger
}

// New creates an Ingester.
func New(memories MemoryWriter, opts Options, logger logrus.FieldLogger) *Ingester {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Importance <= 0 || opts.Importance > 1 {
		opts.Importance = DefaultImportance
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ingester{memories: memories, opts: opts, logger: logger}
}

// IngestFile reads and ingests one markdown file.
func (in *Ingester) IngestFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return in.Ingest(ctx, filepath.Base(path), f)
}

// Ingest splits r and stores every section. Sections that fail to store
// are listed in the report; the error return is reserved for read and pool
// failures.
func (in *Ingester) Ingest(ctx context.Context, source string, r io.Reader) (*Report, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	sections := Split(string(b), in.opts.Split)
	rep := &Report{Source: source, Sections: len(sections)}
	if len(sections) == 0 {
		return rep, nil
	}

	pool, err := ants.NewPool(in.opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	defer pool.Release()

	ids := make([]string, len(sections))
	errs := make([]error, len(sections))
	var wg sync.WaitGroup
	for i, sec := range sections {
		i, sec := i, sec
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			ids[i], errs[i] = in.memories.Store(ctx, sec.Content(), model.Semantic, 0, in.opts.Importance)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	for i := range sections {
		if errs[i] != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("lines %d-%d: %v", sections[i].StartLine, sections[i].EndLine, errs[i]))
			continue
		}
		rep.IDs = append(rep.IDs, ids[i])
		rep.Stored++
	}

	in.logger.WithFields(logrus.Fields{
		"source":   source,
		"sections": rep.Sections,
		"stored":   rep.Stored,
		"failed":   len(rep.Errors),
	}).Info("ingest: document loaded")
	return rep, nil
}
