package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"stationidle.ai/internal/sim/station"
)

const fileSuffix = ".jsonl.zst"

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// SetOnClose registers fn to receive the path of every file the writer
// finishes, on rotation and on Close. fn runs with the writer locked.
func (w *JSONLZstdWriter) SetOnClose(fn func(path string)) {
	w.mu.Lock()
	w.onClose = fn
	w.mu.Unlock()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	// A fresh zstd frame per open keeps appended files decodable as a
	// concatenation of frames.
	path := w.pathForHour(hour)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
		if w.onClose != nil {
			w.onClose(w.curPath)
		}
	}
	w.w = nil
	w.curHour = ""
	w.curPath = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s%s", w.prefix, hour, fileSuffix))
}

// TickLogger writes one JSONL entry per tick under <stationDir>/ticks.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(stationDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(TicksDir(stationDir), "ticks")}
}

func (l *TickLogger) WriteTick(v station.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) SetOnClose(fn func(path string))        { l.w.SetOnClose(fn) }
func (l *TickLogger) Close() error                           { return l.w.Close() }

// EventLogger writes emitted station events under <stationDir>/events.
type EventLogger struct{ w *JSONLZstdWriter }

func NewEventLogger(stationDir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(EventsDir(stationDir), "events")}
}

func (l *EventLogger) WriteEvent(v station.EventLogEntry) error { return l.w.Write(v) }
func (l *EventLogger) SetOnClose(fn func(path string))          { l.w.SetOnClose(fn) }
func (l *EventLogger) Close() error                             { return l.w.Close() }

func TicksDir(stationDir string) string  { return filepath.Join(stationDir, "ticks") }
func EventsDir(stationDir string) string { return filepath.Join(stationDir, "events") }

// ListFiles returns dir's <prefix>-*.jsonl.zst files in chronological order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ScanFile calls fn with each JSON line of a zstd JSONL file. Returning a
// non-nil error from fn stops the scan and is returned as is.
func ScanFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadTickEntries decodes every tick entry in path.
func ReadTickEntries(path string) ([]station.TickLogEntry, error) {
	var out []station.TickLogEntry
	err := ScanFile(path, func(line []byte) error {
		var e station.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
