/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// userAgent distinguishes relay traffic in forge audit logs.
	userAgent = "chainguard-agentrelay"

	// tokenSlack is how long before expiry a cached installation token is
	// considered stale and re-minted.
	tokenSlack = time.Minute
)

// Error is a non-2xx response from the forge.
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("forge %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to the forge on behalf of one app installation.
type Client struct {
	installationID int64
	baseURL        string
	apps           *github.Client

	group  singleflight.Group
	mu     sync.Mutex
	inst   *github.Client
	expiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the forge API base URL (e.g. a GitHub Enterprise
// host or a test server).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// New constructs a Client for the given app identity. The private key may be
// PKCS#1 or PKCS#8 PEM.
func New(appID, installationID int64, privateKeyPEM []byte, opts ...Option) (*Client, error) {
	c := &Client{installationID: installationID}
	for _, opt := range opts {
		opt(c)
	}

	tr, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	apps, err := c.newGitHub(&http.Client{Transport: tr})
	if err != nil {
		return nil, err
	}
	c.apps = apps
	return c, nil
}

// NewWithTokenSource constructs a Client whose calls authenticate with the
// supplied token source directly (e.g. a caller-provided PAT). No app JWT
// flow is involved.
func NewWithTokenSource(ts oauth2.TokenSource, opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	inst, err := c.newGitHub(oauth2.NewClient(context.Background(), ts))
	if err != nil {
		return nil, err
	}
	c.inst = inst
	return c, nil
}

func (c *Client) newGitHub(httpClient *http.Client) (*github.Client, error) {
	gh := github.NewClient(httpClient)
	gh.UserAgent = userAgent
	if c.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		gh.BaseURL = u
		gh.UploadURL = u
	}
	return gh, nil
}

// installation returns a client authenticated with a live installation
// token, minting one if the cache is empty or stale. Minting is
// single-flighted so concurrent callers share one exchange.
func (c *Client) installation(ctx context.Context) (*github.Client, error) {
	c.mu.Lock()
	if c.inst != nil && (c.expiry.IsZero() || time.Until(c.expiry) > tokenSlack) {
		inst := c.inst
		c.mu.Unlock()
		return inst, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("installation-token", func() (any, error) {
		tok, _, err := c.apps.Apps.CreateInstallationToken(ctx, c.installationID, nil)
		if err != nil {
			return nil, wrapErr("create installation token", err)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok.GetToken()})
		inst, err := c.newGitHub(oauth2.NewClient(context.Background(), ts))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.inst = inst
		c.expiry = tok.GetExpiresAt().Time
		c.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*github.Client), nil
}

// wrapErr converts go-github failures into *Error, preserving the upstream
// status and message. Transport-level failures pass through wrapped.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ger *github.ErrorResponse
	if errors.As(err, &ger) && ger.Response != nil {
		return &Error{Op: op, StatusCode: ger.Response.StatusCode, Body: ger.Message}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("malformed repo slug %q", repo)
	}
	return owner, name, nil
}
