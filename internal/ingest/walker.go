package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"query-doctor/internal/model"

	"go.uber.org/zap"
)

// FileWalker traverses a profiler dump directory and feeds matching log
// files to a channel.
type FileWalker struct {
	Extensions map[string]struct{}
}

func NewFileWalker(exts []string) *FileWalker {
	e := make(map[string]struct{})
	for _, ext := range exts {
		e[strings.ToLower(ext)] = struct{}{}
	}
	return &FileWalker{Extensions: e}
}

// Walk starts the traversal and returns a channel of file paths. It runs in
// a separate goroutine and closes the channel when done.
func (fw *FileWalker) Walk(ctx context.Context, root string) (<-chan string, <-chan error) {
	paths := make(chan string, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
					return filepath.SkipDir
				}
				return nil
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if _, ok := fw.Extensions[ext]; ok {
				select {
				case paths <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return paths, errs
}

// LoadResult is the outcome of parsing one log file.
type LoadResult struct {
	File    string
	Records []model.QueryRecord
	Skipped int
	Err     error
}

// WorkerPool parses log files concurrently. Ingestion may fan out; the
// analysis that follows stays single-pass.
type WorkerPool struct {
	Concurrency int
}

func NewWorkerPool(concurrency int) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &WorkerPool{Concurrency: concurrency}
}

func (wp *WorkerPool) Start(ctx context.Context, paths <-chan string) <-chan LoadResult {
	results := make(chan LoadResult)
	var wg sync.WaitGroup

	for i := 0; i < wp.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				records, skipped, err := LoadFile(path)
				select {
				case results <- LoadResult{File: path, Records: records, Skipped: skipped, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// LoadPath loads query records from a log file, or from every *.json /
// *.jsonl file under a directory. Directory results are merged in path
// order so a run is deterministic regardless of worker scheduling.
func LoadPath(ctx context.Context, path string, concurrency int, log *zap.Logger) ([]model.QueryRecord, error) {
	if log == nil {
		log = zap.NewNop()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		records, skipped, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			log.Warn("skipped records without sql", zap.String("file", path), zap.Int("skipped", skipped))
		}
		return records, nil
	}

	walker := NewFileWalker([]string{"json", "jsonl"})
	paths, errCh := walker.Walk(ctx, path)
	results := NewWorkerPool(concurrency).Start(ctx, paths)

	byFile := make(map[string][]model.QueryRecord)
	for res := range results {
		if res.Err != nil {
			log.Warn("unreadable query log, ignoring file", zap.String("file", res.File), zap.Error(res.Err))
			continue
		}
		if res.Skipped > 0 {
			log.Warn("skipped records without sql", zap.String("file", res.File), zap.Int("skipped", res.Skipped))
		}
		byFile[res.File] = res.Records
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	var records []model.QueryRecord
	for _, f := range files {
		records = append(records, byFile[f]...)
	}
	return records, nil
}
