package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SequentialRotator is an io.Writer over a log file that rolls the file over
// to <name>.<n>.log once it grows past maxSize.
type SequentialRotator struct {
	filename   string
	maxSize    int64
	maxAge     int
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

func NewSequentialRotator(filename string, maxSizeMB, maxAgeDays, maxBackups int) *SequentialRotator {
	return &SequentialRotator{
		filename:   filename,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxAge:     maxAgeDays,
		maxBackups: maxBackups,
	}
}

func (r *SequentialRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.maxSize > 0 && r.size+int64(len(p)) > r.maxSize && r.size > 0 {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *SequentialRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *SequentialRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *SequentialRotator) openFile() error {
	if err := os.MkdirAll(filepath.Dir(r.filename), 0755); err != nil {
		return err
	}

	r.size = 0
	if info, err := os.Stat(r.filename); err == nil {
		r.size = info.Size()
	}

	file, err := os.OpenFile(r.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	r.file = file
	return nil
}

func (r *SequentialRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return err
		}
		r.file = nil
	}

	backups := r.backups()
	next := 1
	if len(backups) > 0 {
		next = backups[0].seq + 1
	}

	rotated := fmt.Sprintf("%s.%d.log", strings.TrimSuffix(r.filename, ".log"), next)
	if err := os.Rename(r.filename, rotated); err != nil {
		return err
	}

	r.prune()
	return r.openFile()
}

type backupFile struct {
	path    string
	seq     int
	modTime time.Time
}

// backups lists rotated files, highest sequence number first.
func (r *SequentialRotator) backups() []backupFile {
	base := strings.TrimSuffix(r.filename, ".log")
	matches, err := filepath.Glob(base + ".*.log")
	if err != nil {
		return nil
	}

	out := make([]backupFile, 0, len(matches))
	for _, path := range matches {
		seqStr := strings.TrimSuffix(strings.TrimPrefix(path, base+"."), ".log")
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, backupFile{path: path, seq: seq, modTime: info.ModTime()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

func (r *SequentialRotator) prune() {
	backups := r.backups()

	if r.maxBackups > 0 && len(backups) > r.maxBackups {
		for _, b := range backups[r.maxBackups:] {
			_ = os.Remove(b.path)
		}
		backups = backups[:r.maxBackups]
	}

	if r.maxAge > 0 {
		cutoff := time.Now().AddDate(0, 0, -r.maxAge)
		for _, b := range backups {
			if b.modTime.Before(cutoff) {
				_ = os.Remove(b.path)
			}
		}
	}
}
