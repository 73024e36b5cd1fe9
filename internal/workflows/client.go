// Package workflows talks to the GitHub Actions API to switch off the
// workflow that keeps re-invoking the booker.
package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	// ErrDeactivation marks every failure of Deactivate.
	ErrDeactivation     = errors.New("trigger deactivation failed")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

type Config struct {
	BaseURL      string // https://api.github.com
	Token        string
	Repo         string // owner/name
	WorkflowName string
	HTTPClient   *http.Client
	Log          *zap.Logger
}

type Client struct {
	hc   *http.Client
	cfg  Config
	base string
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.github.com"
	}
	return &Client{hc: hc, cfg: cfg, base: base}
}

type Workflow struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	State string `json:"state"`
}

// Disabled covers "disabled_manually" and "disabled_inactivity".
func (w Workflow) Disabled() bool { return strings.HasPrefix(w.State, "disabled") }

// Deactivate disables the configured workflow. Missing credentials are not an
// error: the operator is told to disable the trigger by hand. The current
// state is always read from the API first, so calling this on an already
// disabled workflow is a no-op.
func (c *Client) Deactivate(ctx context.Context) error {
	log := c.cfg.Log
	if c.cfg.Token == "" || c.cfg.Repo == "" {
		log.Error("GITHUB_TOKEN or GITHUB_REPOSITORY not set, manual disable of the trigger required",
			zap.String("workflow", c.cfg.WorkflowName))
		return nil
	}

	wfs, err := c.List(ctx)
	if err != nil {
		return errors.Mark(err, ErrDeactivation)
	}
	var target *Workflow
	for i := range wfs {
		if wfs[i].Name == c.cfg.WorkflowName {
			target = &wfs[i]
			break
		}
	}
	if target == nil {
		return errors.Mark(errors.Wrapf(ErrWorkflowNotFound, "%q in %s", c.cfg.WorkflowName, c.cfg.Repo), ErrDeactivation)
	}
	if target.Disabled() {
		log.Info("workflow already disabled", zap.Int64("id", target.ID), zap.String("state", target.State))
		return nil
	}
	if err := c.Disable(ctx, target.ID); err != nil {
		return errors.Mark(err, ErrDeactivation)
	}
	log.Info("workflow disabled permanently", zap.Int64("id", target.ID), zap.String("name", target.Name))
	return nil
}

// List returns the repository's workflows (first 100).
func (c *Client) List(ctx context.Context) ([]Workflow, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.repoPath("workflows")+"?per_page=100")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Wrapf(ErrUnexpectedStatus, "list workflows: %d %s", status, apiMessage(body))
	}
	var res struct {
		TotalCount int        `json:"total_count"`
		Workflows  []Workflow `json:"workflows"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "decode workflows")
	}
	return res.Workflows, nil
}

func (c *Client) Disable(ctx context.Context, id int64) error {
	status, body, err := c.do(ctx, http.MethodPut, c.repoPath(fmt.Sprintf("workflows/%d/disable", id)))
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return errors.Wrapf(ErrUnexpectedStatus, "disable workflow %d: %d %s", id, status, apiMessage(body))
	}
	return nil
}

func (c *Client) repoPath(suffix string) string {
	owner, name, _ := strings.Cut(c.cfg.Repo, "/")
	return fmt.Sprintf("%s/repos/%s/%s/actions/%s", c.base, url.PathEscape(owner), url.PathEscape(name), suffix)
}

func (c *Client) do(ctx context.Context, method, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(nil))
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "slot-booker")

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, req.URL.Path)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, errors.Wrap(err, "read response")
	}
	return res.StatusCode, b, nil
}

// apiMessage extracts GitHub's error message field if there is one.
func apiMessage(body []byte) string {
	var r struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &r)
	return r.Message
}
