// Package runlog reads the JSON run log written by the file core of the logger
// and prints the entries that pass a filter, optionally following new writes.
package runlog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Keys written by the production JSON encoder.
const (
	keyTime       = "ts"
	keyLevel      = "level"
	keyLogger     = "logger"
	keyMessage    = "msg"
	keyCaller     = "caller"
	keyStacktrace = "stacktrace"
)

// Entry is one decoded log line.
type Entry struct {
	Time    string
	Level   zapcore.Level
	Logger  string
	Message string
	Fields  map[string]interface{}
}

// ParseLine decodes a JSON log line. Lines that are not JSON objects, such as a
// raw panic trace, are rejected.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Entry{}, false
	}
	var raw map[string]interface{}
	if err := json.UnmarshalFromString(line, &raw); err != nil {
		return Entry{}, false
	}

	e := Entry{Fields: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		switch k {
		case keyTime:
			e.Time = fmt.Sprint(v)
		case keyLevel:
			if err := e.Level.UnmarshalText([]byte(fmt.Sprint(v))); err != nil {
				e.Level = zapcore.InfoLevel
			}
		case keyLogger:
			e.Logger = fmt.Sprint(v)
		case keyMessage:
			e.Message = fmt.Sprint(v)
		case keyCaller, keyStacktrace:
		default:
			e.Fields[k] = v
		}
	}
	return e, true
}

// Filter selects entries.
type Filter struct {
	// MinLevel drops entries below this level.
	MinLevel zapcore.Level
	// Logger keeps only entries whose logger name contains this text.
	Logger string
	// Field and Value keep only entries whose Field renders as Value.
	Field string
	Value string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if f.Logger != "" && !strings.Contains(e.Logger, f.Logger) {
		return false
	}
	if f.Field != "" {
		v, ok := e.Fields[f.Field]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

// Format renders e as one human-readable line with fields sorted by key.
func Format(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s %s", e.Time, strings.ToUpper(e.Level.String()), e.Logger, e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

// Options controls a Reader.
type Options struct {
	// Follow keeps reading as the file grows, across rotations.
	Follow bool
	// FromEnd skips existing content. It only applies when following.
	FromEnd bool
	// Poll watches the file by polling instead of inotify.
	Poll bool
}

// Reader prints filtered entries of one log file.
type Reader struct {
	path   string
	filter Filter
	logger *zap.Logger
}

// NewReader creates a reader for the log file at path.
func NewReader(path string, filter Filter, logger *zap.Logger) (*Reader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("logger.log_file must be configured to read the run log")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("cannot expand log path %q: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{path: expanded, filter: filter, logger: logger.Named("runlog")}, nil
}

// Run writes every matching entry to out until the file is exhausted or, when
// following, until ctx is done. It returns the number of entries written.
func (r *Reader) Run(ctx context.Context, out io.Writer, opts Options) (int, error) {
	cfg := tail.Config{
		Follow:    opts.Follow,
		ReOpen:    opts.Follow,
		Poll:      opts.Poll,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	}
	if opts.Follow && opts.FromEnd {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(r.path, cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to tail run log: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	written := 0
	for {
		select {
		case <-ctx.Done():
			return written, nil
		case line, ok := <-t.Lines:
			if !ok {
				return written, nil
			}
			if line.Err != nil {
				r.logger.Warn("Error reading run log.", zap.Error(line.Err))
				continue
			}
			e, ok := ParseLine(line.Text)
			if !ok || !r.filter.Match(e) {
				continue
			}
			if _, err := fmt.Fprintln(out, Format(e)); err != nil {
				return written, err
			}
			written++
		}
	}
}
