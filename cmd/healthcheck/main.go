// Command healthcheck probes the local /healthz endpoint and exits non-zero
// when the service is unhealthy. It is used as the container HEALTHCHECK.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	url := healthURL(os.Getenv("HEALTHCHECK_URL"), os.Getenv("HTTP_ADDR"))

	client := &http.Client{Timeout: 3 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Error("healthcheck request failed", slog.String("url", url), slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		slog.Error("unhealthy", slog.Int("status", resp.StatusCode))
		os.Exit(1)
	}
}

// healthURL returns override when set, otherwise the /healthz URL of the
// local listener described by addr (":8080" when empty).
func healthURL(override, addr string) string {
	if override != "" {
		return override
	}
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/healthz"
}
