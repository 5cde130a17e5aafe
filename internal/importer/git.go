package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/conorfennell/studyloop/internal/logger"
)

// IsGitURL reports whether source names a remote repository rather than a
// local directory.
func IsGitURL(source string) bool {
	switch {
	case strings.HasPrefix(source, "https://"), strings.HasPrefix(source, "http://"),
		strings.HasPrefix(source, "ssh://"), strings.HasPrefix(source, "git://"):
		return true
	case strings.HasPrefix(source, "git@") && strings.Contains(source, ":"):
		return true
	}
	return false
}

// LocalPath maps a repository URL to its checkout under baseDir, e.g.
// https://github.com/acme/notes.git -> baseDir/github.com/acme/notes.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err != nil || parsed.Host == "" {
		// scp-like syntax: git@host:owner/repo.git
		user, rest, ok := strings.Cut(repoURL, "@")
		if ok && user != "" {
			host, repoPath, ok := strings.Cut(rest, ":")
			if ok && host != "" && repoPath != "" {
				return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	repoPath := strings.TrimSuffix(strings.Trim(parsed.Path, "/"), ".git")
	if repoPath == "" || strings.Contains(repoPath, "..") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return filepath.Join(baseDir, parsed.Host, repoPath), nil
}

// SyncRepo clones repoURL into localPath, or pulls when a checkout already
// exists there.
func SyncRepo(ctx context.Context, log *logger.Logger, repoURL, localPath string, progress io.Writer) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		log.Info("Cloning repository", "url", repoURL, "path", localPath)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(localPath), err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		log.Info("Clone successful", "path", localPath)
	case err == nil:
		log.Info("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		log.Info("Pull successful (or already up-to-date)", "path", localPath)
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}
