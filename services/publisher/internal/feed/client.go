package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/models"
)

// Fetch loads the feed from source, which is either an http(s) URL or a
// local file path.
func Fetch(ctx context.Context, client *http.Client, source string) (models.FeedResponse, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchURL(ctx, client, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return models.FeedResponse{}, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func fetchURL(ctx context.Context, client *http.Client, url string) (models.FeedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FeedResponse{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return models.FeedResponse{}, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.FeedResponse{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return decode(resp.Body)
}

func decode(r io.Reader) (models.FeedResponse, error) {
	var payload models.FeedResponse
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return models.FeedResponse{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
