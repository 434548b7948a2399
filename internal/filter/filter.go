package filter

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"codebase-rag/internal/config"
	"codebase-rag/internal/models"
)

// languageByExt maps recognized extensions to a language hint.
var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".go":   "go",
	".rs":   "rust",
}

// ScanStats counts the outcome of one repository scan.
type ScanStats struct {
	Candidates int // regular files visited
	Loaded     int // files that passed all rules
	Skipped    int // files rejected or unreadable
}

// Filter decides which files under a repository root are eligible for
// ingestion. Rules are applied in order and each is a hard reject:
// extension allow-list, directory deny-list (plus hidden components),
// byte-size window, valid UTF-8 content.
type Filter struct {
	exts     map[string]bool
	skipDirs map[string]bool
	minBytes int64
	maxBytes int64
}

func New(cfg config.FilterConfig) *Filter {
	f := &Filter{
		exts:     make(map[string]bool, len(cfg.AllowedExtensions)),
		skipDirs: make(map[string]bool, len(cfg.SkipDirectories)),
		minBytes: cfg.MinFileBytes,
		maxBytes: cfg.MaxFileBytes,
	}
	for _, ext := range cfg.AllowedExtensions {
		f.exts[ext] = true
	}
	for _, dir := range cfg.SkipDirectories {
		f.skipDirs[dir] = true
	}
	return f
}

// Scan walks root and returns the documents that pass every rule, in
// walk order, with paths relative to root. Per-entry filesystem errors
// are skipped and counted, never fatal. Cancellation is honored
// between entries and aborts the scan with ctx.Err().
func (f *Filter) Scan(ctx context.Context, root string) ([]models.Document, ScanStats, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, ScanStats{}, err
	}
	if !info.IsDir() {
		return nil, ScanStats{}, &fs.PathError{Op: "scan", Path: root, Err: fs.ErrInvalid}
	}

	var docs []models.Document
	var stats ScanStats

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			// permission or stat failure on a single entry: skip it
			log.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			stats.Skipped++
			return nil
		}
		if d.IsDir() {
			if path != root && (f.skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		stats.Candidates++

		if strings.HasPrefix(d.Name(), ".") || !f.exts[filepath.Ext(path)] {
			stats.Skipped++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("cannot stat file")
			stats.Skipped++
			return nil
		}
		if fi.Size() < f.minBytes || fi.Size() > f.maxBytes {
			stats.Skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("cannot read file")
			stats.Skipped++
			return nil
		}
		if !utf8.Valid(data) {
			// likely a binary file, skip rather than error
			stats.Skipped++
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		docs = append(docs, models.Document{
			Path:     filepath.ToSlash(rel),
			Content:  string(data),
			Language: languageByExt[filepath.Ext(path)],
		})
		stats.Loaded++
		return nil
	})
	if walkErr != nil {
		return nil, stats, walkErr
	}

	log.Debug().Int("loaded", stats.Loaded).Int("candidates", stats.Candidates).
		Str("root", root).Msg("repository scan complete")
	return docs, stats, nil
}
