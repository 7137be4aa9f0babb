// Package github implements the PRSource port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/reviewloop/internal/domain/model"
	"github.com/ericfisherdev/reviewloop/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRSource = (*Client)(nil)

// Client implements the driven.PRSource port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchPullRequest retrieves a pull request's metadata and changed files.
// A 404 from GitHub is reported as model.ErrNotFound. File pagination is
// handled automatically; files arrive in the order GitHub lists them.
func (c *Client) FetchPullRequest(ctx context.Context, repoFullName string, number int) (*driven.RemotePullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("pull request %s#%d: %w", repoFullName, number, model.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching pull request %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/pull", 0, 1)

	files, err := c.fetchFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("listing files for %s#%d: %w", repoFullName, number, err)
	}

	return &driven.RemotePullRequest{
		Number: pr.GetNumber(),
		Meta:   mapMetadata(pr),
		Files:  files,
	}, nil
}

func (c *Client) fetchFiles(ctx context.Context, owner, repo string, number int) ([]model.FileInput, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var all []model.FileInput

	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", opts.Page, err)
		}

		logRateLimit(resp, owner+"/"+repo+"/files", opts.Page, len(files))

		for _, f := range files {
			all = append(all, mapCommitFile(f))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.FileInput{}
	}
	return all, nil
}

// mapMetadata converts a go-github PullRequest to sync metadata.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapMetadata(pr *gh.PullRequest) model.PRMetadata {
	return model.PRMetadata{
		Title:      pr.GetTitle(),
		Author:     pr.GetUser().GetLogin(),
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseSHA:    pr.GetBase().GetSHA(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
	}
}

// mapCommitFile converts a go-github CommitFile to a sync file input. Binary
// files come back without a patch and are kept with an empty one.
func mapCommitFile(f *gh.CommitFile) model.FileInput {
	return model.FileInput{
		Path:   f.GetFilename(),
		Status: mapFileStatus(f.GetStatus()),
		Patch:  f.GetPatch(),
	}
}

// mapFileStatus folds GitHub's file statuses onto the four tracked ones.
func mapFileStatus(status string) model.FileStatus {
	switch status {
	case "added", "copied":
		return model.FileStatusAdded
	case "removed":
		return model.FileStatusRemoved
	case "renamed":
		return model.FileStatusRenamed
	default:
		return model.FileStatusModified
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 && resp.Rate.Limit > 0 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo: %w", fullName, model.ErrValidation)
	}
	return parts[0], parts[1], nil
}
