package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/campus-ticket-claim/internal/utils"
)

type stormOptions struct {
	BaseURL     string
	EventID     uint64
	Holders     int
	FirstHolder uint64
	Repeat      int
	Concurrency int
	Role        string
	Secret      string
	Timeout     time.Duration
}

func (o stormOptions) validate() error {
	switch {
	case o.EventID == 0:
		return errors.New("--event is required")
	case o.Holders < 1 || o.Repeat < 1 || o.Concurrency < 1:
		return errors.New("--holders, --repeat and --concurrency must be positive")
	case o.Secret == "":
		return errors.New("--secret (or JWT_SECRET) is required")
	}
	return nil
}

type result struct {
	holder  uint64
	outcome string // HTTP status plus error code, e.g. "409 sold_out"
	latency time.Duration
}

// stormReport aggregates results by outcome.
type stormReport struct {
	counts    map[string]int
	issuedBy  map[uint64]int
	latencies []time.Duration
}

func newReport() *stormReport {
	return &stormReport{counts: map[string]int{}, issuedBy: map[uint64]int{}}
}

func (r *stormReport) add(res result) {
	r.counts[res.outcome]++
	r.latencies = append(r.latencies, res.latency)
	if strings.HasPrefix(res.outcome, "201") {
		r.issuedBy[res.holder]++
	}
}

// duplicates returns holders that received more than one ticket.
func (r *stormReport) duplicates() []uint64 {
	var out []uint64
	for h, n := range r.issuedBy {
		if n > 1 {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *stormReport) percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	s := append([]time.Duration(nil), r.latencies...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	idx := int(p * float64(len(s)-1))
	return s[idx]
}

func (r *stormReport) print(w io.Writer, elapsed time.Duration) {
	keys := make([]string, 0, len(r.counts))
	total := 0
	for k, n := range r.counts {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%d requests in %s\n", total, elapsed.Round(time.Millisecond))
	for _, k := range keys {
		n := r.counts[k]
		bar := strings.Repeat("#", n*40/max(total, 1))
		fmt.Fprintf(w, "  %-28s %6d %s\n", k, n, bar)
	}
	fmt.Fprintf(w, "latency p50=%s p99=%s\n", r.percentile(0.50).Round(time.Microsecond), r.percentile(0.99).Round(time.Microsecond))
	if d := r.duplicates(); len(d) > 0 {
		fmt.Fprintf(w, "WARNING: %d holders received more than one ticket: %v\n", len(d), d)
	}
}

// storm runs every claim and returns the aggregated report.
func storm(ctx context.Context, o stormOptions) (*stormReport, error) {
	client := &http.Client{Timeout: o.Timeout}
	url := fmt.Sprintf("%s/v1/events/%d/claim", strings.TrimRight(o.BaseURL, "/"), o.EventID)

	type job struct {
		holder uint64
		token  string
	}
	jobs := make(chan job)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < o.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- claimOnce(ctx, client, url, j.holder, j.token)
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		defer close(jobs)
		for i := 0; i < o.Holders; i++ {
			holder := o.FirstHolder + uint64(i)
			tok, err := utils.NewAccessToken(o.Secret, holder, o.Role, time.Hour)
			if err != nil {
				errc <- fmt.Errorf("mint token: %w", err)
				return
			}
			for r := 0; r < o.Repeat; r++ {
				select {
				case jobs <- job{holder: holder, token: tok}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	report := newReport()
	for res := range results {
		report.add(res)
	}
	select {
	case err := <-errc:
		return nil, err
	default:
	}
	return report, nil
}

func claimOnce(ctx context.Context, client *http.Client, url string, holder uint64, token string) result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return result{holder: holder, outcome: "error request", latency: time.Since(start)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return result{holder: holder, outcome: "error transport", latency: time.Since(start)}
	}
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	outcome := fmt.Sprintf("%d", resp.StatusCode)
	if body.Error != "" {
		outcome += " " + body.Error
	}
	return result{holder: holder, outcome: outcome, latency: time.Since(start)}
}
