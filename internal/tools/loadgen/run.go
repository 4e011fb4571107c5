// Package loadgen drives synthetic traffic against the handshake
// endpoints, to exercise dashboards and verify observability wiring.
package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL string
	// Profile selects the request mix: "poll" (status checks only),
	// "auth" (token registration plus status), or "mixed" (adds health
	// probes). Empty means "mixed".
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return "mixed"
	}
	return profile
}

// Run generates traffic for cfg.Duration and reports aggregate counts.
// Requests that 4xx are expected for synthetic tokens and do not count
// as failures; only transport errors and 5xx do.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	profile := normalizeProfile(cfg.Profile)
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}

	client := &http.Client{Timeout: 10 * time.Second}
	rng := rand.New(rand.NewSource(cfg.Seed))

	var mu sync.Mutex
	res := &Result{StatusClasses: map[string]int{}}
	record := func(status int, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.TotalRequests++
		if err != nil {
			res.Failures++
			return
		}
		class := classifyStatusClass(status)
		res.StatusClasses[class]++
		if class == "5xx" {
			res.Failures++
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	jobs := make(chan func(), cfg.Concurrency)
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for job := range jobs {
				job()
			}
			return nil
		})
	}

	interval := time.Second / time.Duration(cfg.RPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seededTokens []string
	var tokensMu sync.Mutex

feed:
	for {
		select {
		case <-gctx.Done():
			break feed
		case <-ticker.C:
		}

		kind := pickRequest(profile, rng)
		job := func() {
			switch kind {
			case "token":
				status, body, err := postJSON(gctx, client, cfg.BaseURL+"/api/v1/auth/telegram/token", `{}`)
				record(status, err)
				if err == nil && status == http.StatusOK {
					if token := extractToken(body); token != "" {
						tokensMu.Lock()
						seededTokens = append(seededTokens, token)
						tokensMu.Unlock()
					}
				}
			case "poll":
				tokensMu.Lock()
				token := ""
				if len(seededTokens) > 0 {
					token = seededTokens[rng.Intn(len(seededTokens))]
				}
				tokensMu.Unlock()
				if token == "" {
					// No registered token yet; poll a well-formed
					// unknown one, which the server reports as pending.
					token = strings.Repeat("A", 48)
				}
				status, _, err := get(gctx, client, cfg.BaseURL+"/api/v1/auth/telegram/status?token="+token)
				record(status, err)
			default:
				status, _, err := get(gctx, client, cfg.BaseURL+"/health/live")
				record(status, err)
			}
		}
		select {
		case jobs <- job:
		case <-gctx.Done():
			break feed
		}
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return res, err
	}
	if res.TotalRequests == 0 {
		return res, fmt.Errorf("no requests were sent; is %s reachable?", cfg.BaseURL)
	}
	return res, nil
}

func pickRequest(profile string, rng *rand.Rand) string {
	switch profile {
	case "poll":
		return "poll"
	case "auth", "token":
		if rng.Intn(3) == 0 {
			return "token"
		}
		return "poll"
	default: // mixed
		switch rng.Intn(5) {
		case 0:
			return "token"
		case 1:
			return "health"
		default:
			return "poll"
		}
	}
}

func postJSON(ctx context.Context, client *http.Client, url, body string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func get(ctx context.Context, client *http.Client, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	return resp.StatusCode, body, nil
}

func extractToken(body []byte) string {
	var reply struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return ""
	}
	return reply.Token
}
