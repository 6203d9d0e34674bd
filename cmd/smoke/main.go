// Command smoke walks every endpoint of a running server and reports any
// response whose status differs from the expected one.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
)

type check struct {
	name   string
	method string
	path   string
	body   any
	want   int
}

var (
	diabetesA = []float64{0.038, 0.051, 0.062, 0.022, -0.044, -0.035, -0.043, -0.003, 0.020, -0.018}
	diabetesB = []float64{-0.002, -0.045, -0.051, -0.026, -0.008, -0.019, 0.074, -0.039, -0.068, -0.092}
)

func checks() []check {
	return []check{
		{name: "root", method: http.MethodGet, path: "/", want: http.StatusOK},
		{name: "iris health", method: http.MethodGet, path: "/iris/health", want: http.StatusOK},
		{name: "diabetes health", method: http.MethodGet, path: "/diabetes/health", want: http.StatusOK},
		{
			name: "iris predict", method: http.MethodPost, path: "/iris/predict",
			body: map[string]any{"features": []float64{5.1, 3.5, 1.4, 0.2}}, want: http.StatusOK,
		},
		{
			name: "diabetes predict", method: http.MethodPost, path: "/diabetes/predict",
			body: map[string]any{"features": diabetesA}, want: http.StatusOK,
		},
		{
			name: "iris batch", method: http.MethodPost, path: "/iris/predict/batch",
			body: map[string]any{"samples": [][]float64{
				{5.1, 3.5, 1.4, 0.2},
				{6.2, 2.9, 4.3, 1.3},
				{7.3, 2.9, 6.3, 1.8},
			}},
			want: http.StatusOK,
		},
		{
			name: "diabetes batch", method: http.MethodPost, path: "/diabetes/predict/batch",
			body: map[string]any{"samples": [][]float64{diabetesA, diabetesB}}, want: http.StatusOK,
		},
		{name: "iris info", method: http.MethodGet, path: "/iris/info", want: http.StatusOK},
		{name: "diabetes info", method: http.MethodGet, path: "/diabetes/info", want: http.StatusOK},
		{
			name: "iris wrong feature count", method: http.MethodPost, path: "/iris/predict",
			body: map[string]any{"features": []float64{5.1, 3.5}}, want: http.StatusUnprocessableEntity,
		},
		{
			name: "diabetes wrong feature count", method: http.MethodPost, path: "/diabetes/predict",
			body: map[string]any{"features": []float64{0.038, 0.051, 0.062}}, want: http.StatusUnprocessableEntity,
		},
		{name: "unknown model", method: http.MethodGet, path: "/nonexistent/health", want: http.StatusNotFound},
	}
}

func main() {
	base := flag.String("base", "http://localhost:8000/api/v1", "API base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	if err := run(context.Background(), client, *base, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "smoke test failed:")
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, " -", e)
		}
		os.Exit(1)
	}
	fmt.Println("All checks passed")
}

// run executes every check and collects the failures.
func run(ctx context.Context, client *http.Client, base string, out io.Writer) error {
	base = strings.TrimSuffix(base, "/")
	var errs error
	for _, c := range checks() {
		status, body, err := do(ctx, client, base, c)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		fmt.Fprintf(out, "%s %s%s -> %d\n%s\n\n", c.method, base, c.path, status, body)
		if status != c.want {
			errs = multierr.Append(errs, fmt.Errorf("%s: status %d, want %d", c.name, status, c.want))
		}
	}
	return errs
}

func do(ctx context.Context, client *http.Client, base string, c check) (int, string, error) {
	var reader io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			return 0, "", err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, base+c.path, reader)
	if err != nil {
		return 0, "", err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		return resp.StatusCode, pretty.String(), nil
	}
	return resp.StatusCode, string(raw), nil
}
