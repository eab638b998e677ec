// Package tracker exports alerts to an external issue tracker.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hashsync/internal/config"
	"hashsync/internal/services"
)

// ErrNotConfigured reports that no tracker repository or token is set.
var ErrNotConfigured = errors.New("issue tracker not configured")

// Issue is the payload filed for an alert.
type Issue struct {
	Title  string
	Body   string
	Labels []string
}

// Client files issues.
type Client interface {
	CreateIssue(ctx context.Context, issue Issue) (string, error)
}

// HTTPDoer describes the HTTP client used by the GitHub tracker.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// New returns a GitHub-backed client, or one that always reports
// ErrNotConfigured when the repository or token is missing.
func New(cfg *config.Config) Client {
	if cfg == nil || cfg.Tracker.GitHubRepo == "" || cfg.Tracker.GitHubToken == "" {
		return disabled{}
	}
	timeout := time.Duration(cfg.Tracker.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return NewGitHub(cfg.Tracker.BaseURL, cfg.Tracker.GitHubRepo, cfg.Tracker.GitHubToken, cfg.Tracker.Labels, &http.Client{Timeout: timeout})
}

type disabled struct{}

func (disabled) CreateIssue(context.Context, Issue) (string, error) { return "", ErrNotConfigured }

// GitHub files issues through the GitHub REST API.
type GitHub struct {
	baseURL string
	repo    string
	token   string
	labels  []string
	client  HTTPDoer
}

// NewGitHub constructs a GitHub tracker for repo ("owner/name").
func NewGitHub(baseURL, repo, token string, labels []string, client HTTPDoer) *GitHub {
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHub{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		repo:    strings.Trim(strings.TrimSpace(repo), "/"),
		token:   strings.TrimSpace(token),
		labels:  labels,
		client:  client,
	}
}

type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type createIssueResponse struct {
	HTMLURL string `json:"html_url"`
	Number  int    `json:"number"`
}

// CreateIssue files issue and returns its URL.
func (g *GitHub) CreateIssue(ctx context.Context, issue Issue) (string, error) {
	if g == nil || g.repo == "" || g.token == "" {
		return "", ErrNotConfigured
	}
	labels := append(append([]string(nil), g.labels...), issue.Labels...)
	payload, err := json.Marshal(createIssueRequest{Title: issue.Title, Body: issue.Body, Labels: labels})
	if err != nil {
		return "", fmt.Errorf("encode issue: %w", err)
	}
	endpoint := fmt.Sprintf("%s/repos/%s/issues", g.baseURL, g.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build issue request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "tracker", "create issue", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", services.Wrap(services.ErrExternal, "tracker", "create issue",
			fmt.Sprintf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	var created createIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode issue response: %w", err)
	}
	if created.HTMLURL == "" {
		return "", services.Wrap(services.ErrExternal, "tracker", "create issue", "response missing html_url", nil)
	}
	return created.HTMLURL, nil
}
