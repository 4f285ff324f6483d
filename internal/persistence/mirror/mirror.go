// Package mirror copies finished station files (snapshots, run archives and
// rotated tick/event logs) to an object store in the background.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Uploader interface {
	Put(ctx context.Context, key, localPath string) error
}

type Options struct {
	// Prefix is prepended to every object key.
	Prefix      string
	Workers     int
	Queue       int
	EnqueueWait time.Duration
	Attempts    int
	// Backoff is scaled by attempt² between retries.
	Backoff time.Duration
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	EnqueuedTotal  uint64 `json:"enqueued_total"`
	DroppedTotal   uint64 `json:"dropped_total"`
	UploadedTotal  uint64 `json:"uploaded_total"`
	FailedTotal    uint64 `json:"failed_total"`
	LastUploadUnix int64  `json:"last_upload_unix"`
	LastErrorUnix  int64  `json:"last_error_unix"`
}

// Mirror uploads files below root with keys relative to it. Enqueue never
// blocks longer than EnqueueWait; files that do not fit are dropped.
type Mirror struct {
	up     Uploader
	root   string
	opts   Options
	logger *log.Logger

	jobs chan string
	wg   sync.WaitGroup

	enqueued   atomic.Uint64
	dropped    atomic.Uint64
	uploaded   atomic.Uint64
	failed     atomic.Uint64
	lastUpload atomic.Int64
	lastError  atomic.Int64
}

func New(up Uploader, root string, opts Options, logger *log.Logger) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 1024
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Mirror{
		up:     up,
		root:   root,
		opts:   opts,
		logger: logger,
		jobs:   make(chan string, opts.Queue),
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	timer := time.NewTimer(m.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- localPath:
	case <-timer.C:
		n := m.dropped.Add(1)
		m.logger.Printf("mirror: drop %s (queue full, dropped_total=%d)", localPath, n)
	}
}

// EnqueueIfExists is Enqueue for optional companions such as meta.json.
func (m *Mirror) EnqueueIfExists(localPath string) {
	if m == nil {
		return
	}
	if _, err := os.Stat(localPath); err == nil {
		m.Enqueue(localPath)
	}
}

// Close waits for queued uploads to finish. Enqueue must not be called after.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(m.jobs),
		QueueCapacity:  cap(m.jobs),
		EnqueuedTotal:  m.enqueued.Load(),
		DroppedTotal:   m.dropped.Load(),
		UploadedTotal:  m.uploaded.Load(),
		FailedTotal:    m.failed.Load(),
		LastUploadUnix: m.lastUpload.Load(),
		LastErrorUnix:  m.lastError.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.Key(localPath)
	if err != nil {
		m.logger.Printf("mirror: skip %s: %v", localPath, err)
		return
	}
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.Put(ctx, key, localPath)
		cancel()
		if err == nil {
			m.uploaded.Add(1)
			m.lastUpload.Store(time.Now().Unix())
			return
		}
		if attempt >= m.opts.Attempts {
			break
		}
		time.Sleep(time.Duration(attempt*attempt) * m.opts.Backoff)
	}
	m.failed.Add(1)
	m.lastError.Store(time.Now().Unix())
	m.logger.Printf("mirror: upload %s failed: %v", key, err)
}

// Key maps a local file below root to its object key.
func (m *Mirror) Key(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty path")
	}
	absRoot, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", absLocal, absRoot)
	}
	if m.opts.Prefix != "" {
		rel = path.Join(m.opts.Prefix, rel)
	}
	return rel, nil
}
