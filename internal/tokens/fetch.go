package tokens

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sethgrid/pester"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/volstress/volstress/internal/powerflex"
)

// Login attempts per token before giving up, with exponential backoff
// in between.
const defaultLoginTries = 7

const defaultFetchConcurrency = 8

// FetchConfig describes where and how to fetch session tokens.
type FetchConfig struct {
	Endpoint                  string
	Username                  string
	Password                  string
	Count                     int
	Concurrency               int
	SkipCertificateValidation bool
}

// Fetch logs in to the array or proxy Count times and returns the
// issued session tokens in login order. Logins run concurrently and
// transient failures are retried.
func Fetch(ctx context.Context, log *logrus.Entry, cfg FetchConfig) ([]string, error) {
	if cfg.Count <= 0 {
		return nil, errors.New("token count must be positive")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint must be set")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	client := newLoginClient(log, cfg.SkipCertificateValidation)
	tokens := make([]string, cfg.Count)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i := 0; i < cfg.Count; i++ {
		i := i
		group.Go(func() error {
			token, err := login(ctx, client, cfg)
			if err != nil {
				return fmt.Errorf("login %d: %w", i+1, err)
			}
			tokens[i] = token
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func newLoginClient(log *logrus.Entry, skipCertificateValidation bool) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = defaultLoginTries
	client.LogHook = func(e pester.ErrEntry) {
		log.Warnf("retrying failed login attempt: %+v", e)
	}
	if skipCertificateValidation {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		client.Transport = transport
	}
	return client
}

func login(ctx context.Context, client *pester.Client, cfg FetchConfig) (string, error) {
	url := strings.TrimSuffix(cfg.Endpoint, "/") + powerflex.LoginPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(cfg.Username, cfg.Password)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	// The array returns the token as a JSON-encoded string.
	var token string
	if err := json.Unmarshal(body, &token); err != nil {
		token = strings.TrimSpace(string(body))
	}
	if token == "" {
		return "", errors.New("login returned an empty token")
	}
	return token, nil
}
