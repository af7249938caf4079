// Package ingest delivers locally dropped case batches into the feed queue.
// A watched directory accepts JSON files (a CaseRecord array or a
// {"cases": [...]} envelope) and JSONL files (one record per line); accepted
// records are appended to the queued-case buffer, where the live feed picks
// them up. Records whose incidentId is already known are skipped.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

// FolderOptions controls drop-folder behavior.
type FolderOptions struct {
	Dir      string
	Watch    bool
	Patterns []string // e.g. []string{"*.json", "*.jsonl"}
	Logger   *log.Logger

	// When true and in Watch mode, start JSONL files at EOF on startup so
	// existing lines are not re-enqueued on every start.
	TailFromEnd bool
}

// FolderIngestor enqueues dropped case batches (one-shot or watch mode).
type FolderIngestor struct {
	store *state.Store
	opts  FolderOptions

	mu        sync.Mutex
	offsets   map[string]int64    // per-file tail offset for jsonl
	processed map[string]struct{} // json files already enqueued

	enqueued int
	errors   int
}

// batchEnvelope is the optional object form of a dropped JSON file.
type batchEnvelope struct {
	Cases []model.CaseRecord `json:"cases"`
}

// NewFolderIngestor constructs a folder ingestor.
func NewFolderIngestor(st *state.Store, opts FolderOptions) *FolderIngestor {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[drop-folder] ", log.LstdFlags)
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.json", "*.jsonl"}
	}
	return &FolderIngestor{
		store:     st,
		opts:      opts,
		offsets:   make(map[string]int64),
		processed: make(map[string]struct{}),
	}
}

// Run executes the ingestion per options (one-shot or watch).
func (fi *FolderIngestor) Run(ctx context.Context) error {
	if err := fi.scanOnce(ctx); err != nil {
		return err
	}

	if !fi.opts.Watch {
		fi.opts.Logger.Printf("Completed one-shot scan: enqueued=%d errors=%d", fi.enqueued, fi.errors)
		return nil
	}

	return fi.watchLoop(ctx)
}

func (fi *FolderIngestor) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range fi.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		if ok, _ := filepath.Match(p, lower); ok {
			return true
		}
	}
	return false
}

func (fi *FolderIngestor) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fi.opts.Dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !fi.matches(e.Name()) {
			continue
		}
		path := filepath.Join(fi.opts.Dir, e.Name())
		lower := strings.ToLower(e.Name())

		if strings.HasSuffix(lower, ".jsonl") {
			// Initialize the offset to EOF when tailing, so startup does not
			// replay existing lines.
			if fi.opts.Watch && fi.opts.TailFromEnd {
				if st, err := os.Stat(path); err == nil {
					fi.mu.Lock()
					fi.offsets[path] = st.Size()
					fi.mu.Unlock()
				}
				continue
			}
			if err := fi.processJSONL(ctx, path); err != nil {
				fi.opts.Logger.Printf("error processing %s: %v", path, err)
				fi.errors++
			}
		} else if strings.HasSuffix(lower, ".json") {
			if err := fi.processJSONFile(ctx, path); err != nil {
				fi.opts.Logger.Printf("error processing %s: %v", path, err)
				fi.errors++
			}
		}
	}
	return nil
}

func (fi *FolderIngestor) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fi.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	fi.opts.Logger.Printf("Watching directory: %s (patterns: %s)", fi.opts.Dir, strings.Join(fi.opts.Patterns, ","))

	for {
		select {
		case <-ctx.Done():
			fi.opts.Logger.Printf("Watch stopping: enqueued=%d errors=%d", fi.enqueued, fi.errors)
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !fi.matches(name) {
				continue
			}
			if (ev.Op&fsnotify.Create) == 0 && (ev.Op&fsnotify.Write) == 0 {
				continue
			}
			lower := strings.ToLower(name)
			switch {
			case strings.HasSuffix(lower, ".jsonl"):
				if err := fi.processJSONL(ctx, ev.Name); err != nil {
					fi.opts.Logger.Printf("error processing %s: %v", ev.Name, err)
					fi.errors++
				}
			case strings.HasSuffix(lower, ".json"):
				// Writers may still be mid-write on Create; a short settle
				// delay avoids parsing partial files.
				time.Sleep(100 * time.Millisecond)
				if err := fi.processJSONFile(ctx, ev.Name); err != nil {
					fi.opts.Logger.Printf("error processing %s: %v", ev.Name, err)
					fi.errors++
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fi.opts.Logger.Printf("watch error: %v", err)
		}
	}
}

// processJSONFile parses a dropped .json batch and enqueues its records.
// A file is only processed once per run.
func (fi *FolderIngestor) processJSONFile(_ context.Context, path string) error {
	fi.mu.Lock()
	if _, done := fi.processed[path]; done {
		fi.mu.Unlock()
		return nil
	}
	fi.processed[path] = struct{}{}
	fi.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	records, err := parseBatch(data)
	if err != nil {
		return fmt.Errorf("parse batch: %w", err)
	}

	added := fi.store.Enqueue(records)
	fi.enqueued += added
	fi.opts.Logger.Printf("enqueued %d/%d cases from %s", added, len(records), filepath.Base(path))
	return nil
}

// processJSONL tails a .jsonl file from its last offset, enqueuing one
// record per line.
func (fi *FolderIngestor) processJSONL(_ context.Context, path string) error {
	fi.mu.Lock()
	offset := fi.offsets[path]
	fi.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
	}

	var records []model.CaseRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	read := offset
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(line)) + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		var record model.CaseRecord
		if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
			fi.opts.Logger.Printf("skipping invalid line in %s: %v", filepath.Base(path), err)
			fi.errors++
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	fi.mu.Lock()
	fi.offsets[path] = read
	fi.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	added := fi.store.Enqueue(records)
	fi.enqueued += added
	fi.opts.Logger.Printf("enqueued %d/%d cases from %s", added, len(records), filepath.Base(path))
	return nil
}

// parseBatch accepts either a bare array of records or a {"cases": [...]}
// envelope.
func parseBatch(data []byte) ([]model.CaseRecord, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty file")
	}
	if strings.HasPrefix(trimmed, "[") {
		var records []model.CaseRecord
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var envelope batchEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, err
	}
	if envelope.Cases == nil {
		return nil, fmt.Errorf("object form requires a \"cases\" array")
	}
	return envelope.Cases, nil
}
