package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultGitHubRawBaseURL serves raw repository files.
const DefaultGitHubRawBaseURL = "https://raw.githubusercontent.com"

// readmeBranches are tried in order when locating a repository README.
var readmeBranches = []string{"main", "master"}

// FetchGitHubReadme returns README.md from the repository's default branch,
// trying main before master.
func (f *Fetcher) FetchGitHubReadme(ctx context.Context, owner, repo string) (string, error) {
	headers := map[string]string{"Accept": "text/plain"}
	if f.config.GitHubToken != "" {
		headers["Authorization"] = "token " + f.config.GitHubToken
	}

	base := strings.TrimRight(f.config.GitHubRawBaseURL, "/")

	var lastErr error
	for _, branch := range readmeBranches {
		url := fmt.Sprintf("%s/%s/%s/%s/README.md", base, owner, repo, branch)
		body, err := f.get(ctx, url, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) || fetchErr.StatusCode == 0 {
			break
		}
	}

	return "", fmt.Errorf("readme for %s/%s: %w", owner, repo, lastErr)
}
