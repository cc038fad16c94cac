package memora

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nevindra/memora/ingest"
)

// defaultImportMaxFiles bounds a directory import when the caller passes 0.
const defaultImportMaxFiles = 20

// ImportDocument ingests one file into a category artifact. The file's
// text is extracted by type (plain, markdown, PDF, HTML), prefixed with a
// provenance header, and appended to the target artifact.
//
// When category is "" and autoDetect is true, the category is inferred
// from filename keywords with a fallback to "activity". When category is
// "" and autoDetect is false, the content goes to "activity".
func (r *RecallAgent) ImportDocument(ctx context.Context, path, agentID, userID, category string, autoDetect bool) (ImportReport, error) {
	if r.tracer != nil {
		var span Span
		ctx, span = r.tracer.Start(ctx, "memora.recall.import",
			StringAttr("path", filepath.Base(path)))
		defer span.End()
	}

	report := ImportReport{Path: path}

	if category == "" {
		if autoDetect {
			category = r.detectCategory(filepath.Base(path))
		} else {
			category = "activity"
		}
	}
	report.Category = category
	if _, err := r.registry.Get(category); err != nil {
		report.Error = err.Error()
		return report, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		ioErr := &ErrStorageIO{Op: "import read", Err: err}
		report.Error = ioErr.Error()
		return report, ioErr
	}

	text, err := ingest.ForPath(path).Extract(raw)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		report.Error = "no text content extracted"
		return report, fmt.Errorf("import %s: no text content extracted", path)
	}

	header := fmt.Sprintf("# Imported from %s\n\n*Imported on %s*\n\n",
		filepath.Base(path), time.Now().Format(time.RFC3339))
	if err := r.storage.Append(ctx, agentID, userID, category, header+text+"\n"); err != nil {
		report.Error = err.Error()
		return report, err
	}

	r.refreshEmbedding(ctx, agentID, userID, category)

	report.Success = true
	report.Bytes = len(text)
	r.logger.Info("document imported",
		"path", filepath.Base(path), "category", category, "bytes", len(text))
	return report, nil
}

// ImportDirectory imports up to maxFiles files matching pattern (a
// filepath.Match glob on the base name) from dir. Files are processed in
// lexical order; per-file failures are recorded and do not stop the run.
// The cooperative stop signal is checked between files: on trip, the
// remaining files are reported as stopped.
func (r *RecallAgent) ImportDirectory(ctx context.Context, dir, agentID, userID, pattern string, maxFiles int) ([]ImportReport, error) {
	if pattern == "" {
		pattern = "*"
	}
	if maxFiles <= 0 {
		maxFiles = defaultImportMaxFiles
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ErrStorageIO{Op: "import list", Err: err}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) > maxFiles {
		paths = paths[:maxFiles]
	}

	reports := make([]ImportReport, 0, len(paths))
	for i, p := range paths {
		if r.stopped.Load() {
			for _, rest := range paths[i:] {
				reports = append(reports, ImportReport{Path: rest, Stopped: true})
			}
			return reports, &ErrCancelled{Partial: fmt.Sprintf("imported %d of %d files", i, len(paths))}
		}
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		rep, err := r.ImportDocument(ctx, p, agentID, userID, "", true)
		if err != nil {
			r.logger.Warn("file import failed", "path", p, "error", err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// detectCategory infers a category from filename keywords, longest
// category name first so "important_event" wins over "event".
func (r *RecallAgent) detectCategory(filename string) string {
	lower := strings.ToLower(filename)
	names := r.registry.Names()
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return "activity"
}

// refreshEmbedding re-embeds the artifact's full content after an import.
// Best-effort: failures are logged, never returned.
func (r *RecallAgent) refreshEmbedding(ctx context.Context, agentID, userID, category string) {
	if r.embed == nil {
		return
	}
	content, err := r.storage.Read(ctx, agentID, userID, category)
	if err != nil || strings.TrimSpace(content) == "" {
		return
	}
	vec, err := r.embed.GetOrCompute(ctx, content)
	if err != nil {
		r.logger.Warn("import embedding failed", "category", category, "error", err)
		return
	}
	if err := r.storage.SaveEmbedding(ctx, agentID, userID, category, vec); err != nil {
		r.logger.Warn("import embedding save failed", "category", category, "error", err)
	}
}
