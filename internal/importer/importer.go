// Package importer bulk-loads study material from a directory or a git
// repository through the regular upload path.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/studyloop/internal/contenthash"
	"github.com/conorfennell/studyloop/internal/documents"
	"github.com/conorfennell/studyloop/internal/logger"
)

// Uploader is the upload path files are pushed through.
type Uploader interface {
	UploadBatch(ctx context.Context, userID string, files []documents.File, onProgress documents.ProgressFunc) ([]documents.UploadStatus, error)
}

// HashIndex answers whether a user already has a document with a content hash.
type HashIndex interface {
	DocumentHashExists(ctx context.Context, userID, hash string) (bool, error)
}

// Report summarises one import run.
type Report struct {
	Source   string   `json:"source"`
	Scanned  int      `json:"scanned"`
	Skipped  int      `json:"skipped"`
	Uploaded int      `json:"uploaded"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Importer walks a source tree and uploads new files.
type Importer struct {
	uploader Uploader
	hashes   HashIndex
	reposDir string
	log      *logger.Logger
	// Progress receives git clone/pull output; nil discards it.
	Progress io.Writer
}

func New(uploader Uploader, hashes HashIndex, reposDir string, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Importer{uploader: uploader, hashes: hashes, reposDir: reposDir, log: log.With("component", "importer")}
}

// candidate is a file to upload; name is its slash-separated path relative
// to the import root and becomes the document title. Content is read again
// when the candidate's batch is uploaded.
type candidate struct {
	path string
	name string
	size int64
}

// Import uploads every allowed file under source for userID. Git URLs are
// cloned (or pulled) into the repos directory first. Files whose content is
// already imported are skipped.
func (im *Importer) Import(ctx context.Context, userID, source string) (*Report, error) {
	root := source
	if IsGitURL(source) {
		local, err := LocalPath(im.reposDir, source)
		if err != nil {
			return nil, err
		}
		if err := SyncRepo(ctx, im.log, source, local, im.Progress); err != nil {
			return nil, err
		}
		root = local
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read import source %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import source %s is not a directory", root)
	}

	report := &Report{Source: source}
	pending, err := im.collect(ctx, userID, root, report)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(pending); start += documents.MaxFiles {
		end := min(start+documents.MaxFiles, len(pending))
		im.upload(ctx, userID, pending[start:end], report)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	im.log.Info("Import complete",
		"source", source,
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"uploaded", report.Uploaded,
		"failed", report.Failed,
	)
	return report, nil
}

func (im *Importer) collect(ctx context.Context, userID, root string, report *Report) ([]candidate, error) {
	var pending []candidate
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !documents.Allowed(d.Name()) {
			return nil
		}
		report.Scanned++

		info, err := d.Info()
		if err != nil {
			report.fail(path, err)
			return nil
		}
		if info.Size() > documents.MaxFileSize {
			report.fail(path, errors.New("larger than 10MB"))
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			report.fail(path, err)
			return nil
		}
		hash := contenthash.ForFile(d.Name(), data)
		size := int64(len(data))
		if seen[hash] {
			report.Skipped++
			return nil
		}
		seen[hash] = true
		exists, err := im.hashes.DocumentHashExists(ctx, userID, hash)
		if err != nil {
			return fmt.Errorf("db check for %s: %w", path, err)
		}
		if exists {
			im.log.Debug("Already imported, skipping", "path", path, "hash", hash)
			report.Skipped++
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = d.Name()
		}
		pending = append(pending, candidate{path: path, name: filepath.ToSlash(rel), size: size})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", root, walkErr)
	}
	return pending, nil
}

// upload opens the batch's files and pushes them through the uploader. A
// file that can no longer be opened fails on its own.
func (im *Importer) upload(ctx context.Context, userID string, batch []candidate, report *Report) {
	files := make([]documents.File, 0, len(batch))
	opened := make([]candidate, 0, len(batch))
	handles := make([]*os.File, 0, len(batch))
	defer func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}()
	for _, c := range batch {
		f, err := os.Open(c.path)
		if err != nil {
			report.fail(c.path, err)
			continue
		}
		handles = append(handles, f)
		files = append(files, documents.File{
			Name:        c.name,
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(c.name))),
			Size:        c.size,
			Content:     f,
		})
		opened = append(opened, c)
	}
	if len(files) == 0 {
		return
	}
	batch = opened

	statuses, err := im.uploader.UploadBatch(ctx, userID, files, nil)
	if err != nil {
		for _, c := range batch {
			report.fail(c.path, err)
		}
		return
	}
	for i, st := range statuses {
		switch {
		case !st.Complete:
			report.fail(batch[i].path, errors.New(st.Error))
		case st.Document != nil && st.Document.ErrorMessage != "":
			im.log.Warn("Imported but processing did not start", "path", batch[i].path, "error", st.Document.ErrorMessage)
			report.Uploaded++
		default:
			im.log.Info("Imported", "path", batch[i].path)
			report.Uploaded++
		}
	}
}

func (r *Report) fail(path string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", path, err))
}
