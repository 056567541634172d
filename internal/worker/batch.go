package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/inspecta/internal/model"
)

// Analyzer produces a report for one installation photograph
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, it model.InstallationType) (*model.AnalysisReport, error)
}

// ImageJob analyzes one image file
type ImageJob struct {
	Path     string
	Type     model.InstallationType
	Analyzer Analyzer
}

// Execute reads the image and runs the analysis
func (j *ImageJob) Execute(ctx context.Context) Result {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return &ImageResult{Path: j.Path, Error: fmt.Errorf("read image: %w", err)}
	}
	report, err := j.Analyzer.Analyze(ctx, data, j.Type)
	if err != nil {
		return &ImageResult{Path: j.Path, Error: err}
	}
	return &ImageResult{Path: j.Path, Report: report}
}

// ImageResult is the outcome of one ImageJob. Report is nil when Error is set.
type ImageResult struct {
	Path   string
	Report *model.AnalysisReport
	Error  error
}

// GetError returns the error from the analysis
func (r *ImageResult) GetError() error {
	return r.Error
}

// BatchProcessor analyzes many images concurrently. Each image is an
// independent request; one failure does not affect the others.
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(analyzer Analyzer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
}

// ProcessImages analyzes paths and returns one result per path, in input order
func (b *BatchProcessor) ProcessImages(ctx context.Context, paths []string, it model.InstallationType) []*ImageResult {
	out := make([]*ImageResult, len(paths))
	if len(paths) == 0 {
		return out
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, p := range paths {
		if err := pool.Submit(&ImageJob{Path: p, Type: it, Analyzer: b.analyzer}); err != nil {
			// the batch was cancelled; queued images are not started
			pool.Shutdown()
			break
		}
	}

	results, _ := pool.Wait()
	for i := range out {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*ImageResult)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		out[i] = &ImageResult{Path: paths[i], Error: model.NewError(model.KindUpstreamUnavailable, "batch", err)}
	}
	return out
}

// ProcessPath analyzes every image named by path, which is either a directory
// or a list file
func (b *BatchProcessor) ProcessPath(ctx context.Context, path string, it model.InstallationType) ([]*ImageResult, error) {
	paths, err := CollectImages(path)
	if err != nil {
		return nil, err
	}
	return b.ProcessImages(ctx, paths, it), nil
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// CollectImages lists the images of a directory (sorted, not recursive) or
// reads a list file
func CollectImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return ReadImageList(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ReadImageList reads image paths from a file, one per line. Blank lines and
// # comments are skipped, duplicates are dropped, and relative paths resolve
// against the list file's directory.
func ReadImageList(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(filePath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return paths, nil
}
