package outcome

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// lockTimeout bounds how long a writer waits for another process holding
// the sink lock.
const lockTimeout = 5 * time.Second

// Sink receives outcome records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(o Outcome) error
}

// FileLog appends outcome lines to a file. Each record is written with a
// single write while holding both an in-process mutex and a file lock, so
// concurrent writers in this or another process never interleave lines.
type FileLog struct {
	path string
	mu   sync.Mutex
	file *os.File
	lock *SinkLock
}

// OpenFileLog opens path for appending, creating it and its parent
// directory if absent.
func OpenFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "create log directory",
			Path: filepath.Dir(path),
			Err:  err,
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "open outcome log",
			Path: path,
			Err:  err,
		}
	}

	return &FileLog{
		path: path,
		file: f,
		lock: NewSinkLock(path),
	}, nil
}

// Path returns the log file path.
func (l *FileLog) Path() string {
	return l.path
}

// Record appends o as one line.
func (l *FileLog) Record(o Outcome) error {
	line := o.Line()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return &envcertserrors.EnvcertsError{
			Op:   "append outcome",
			Path: l.path,
			Err:  os.ErrClosed,
		}
	}

	if err := l.lock.Acquire(lockTimeout); err != nil {
		return &envcertserrors.EnvcertsError{
			Op:   "lock outcome log",
			Path: l.path,
			Err:  err,
		}
	}
	defer func() { _ = l.lock.Release() }()

	if _, err := l.file.WriteString(line); err != nil {
		return &envcertserrors.EnvcertsError{
			Op:   "append outcome",
			Path: l.path,
			Err:  err,
		}
	}

	return nil
}

// Close closes the underlying file. Later Record calls fail.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadAll parses every record in the log at path. A missing file yields no
// records.
func ReadAll(path string) ([]Outcome, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "read outcome log",
			Path: path,
			Err:  err,
		}
	}
	defer func() { _ = f.Close() }()

	var records []Outcome
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if scanner.Text() == "" {
			continue
		}
		o, err := Parse(scanner.Text())
		if err != nil {
			return records, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, o)
	}
	if err := scanner.Err(); err != nil {
		return records, &envcertserrors.EnvcertsError{
			Op:   "read outcome log",
			Path: path,
			Err:  err,
		}
	}

	return records, nil
}
