package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Harshitk-cp/updraft/internal/domain"
)

const requestTimeout = 30 * time.Second

// Client reads update descriptors from the external feed:
// GET {base}/updates?channel={channel}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// descriptor is the feed wire format for one update package.
type descriptor struct {
	PackageID   string   `json:"package_id"`
	Version     string   `json:"version"`
	ReleaseDate string   `json:"release_date"`
	Type        string   `json:"type"`
	DownloadURL string   `json:"download_url"`
	Checksum    string   `json:"checksum"`
	SizeBytes   int64    `json:"size_bytes"`
	Description string   `json:"description"`
	Changelog   []string `json:"changelog"`
	Requirements struct {
		MinVersion   string            `json:"min_version"`
		Dependencies map[string]string `json:"dependencies"`
		Features     []string          `json:"features"`
	} `json:"requirements"`
	Compatibility struct {
		Platforms []string `json:"platforms"`
	} `json:"compatibility"`
	RollbackSupported bool `json:"rollback_supported"`
	Critical          bool `json:"critical"`
}

// List fetches the update descriptors published on one channel.
func (c *Client) List(ctx context.Context, channel domain.Channel) ([]domain.UpdatePackage, error) {
	endpoint := fmt.Sprintf("%s/updates?channel=%s", c.baseURL, url.QueryEscape(string(channel)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d for channel %s", resp.StatusCode, channel)
	}

	var descriptors []descriptor
	if err := json.Unmarshal(body, &descriptors); err != nil {
		return nil, fmt.Errorf("unmarshal feed response: %w", err)
	}

	packages := make([]domain.UpdatePackage, 0, len(descriptors))
	for _, d := range descriptors {
		if d.PackageID == "" || d.Version == "" {
			continue
		}
		packages = append(packages, domain.UpdatePackage{
			ID:          d.PackageID,
			Version:     d.Version,
			Channel:     channel,
			ReleaseDate: parseReleaseDate(d.ReleaseDate),
			UpdateType:  updateType(d.Type),
			DownloadURL: d.DownloadURL,
			Checksum:    d.Checksum,
			SizeBytes:   d.SizeBytes,
			Description: d.Description,
			Changelog:   d.Changelog,
			Requirements: domain.Requirements{
				MinVersion:   d.Requirements.MinVersion,
				Dependencies: d.Requirements.Dependencies,
				Features:     d.Requirements.Features,
			},
			Compatibility: domain.Compatibility{
				Platforms: d.Compatibility.Platforms,
			},
			RollbackSupported: d.RollbackSupported,
			Critical:          d.Critical,
			CreatedAt:         time.Now(),
		})
	}
	return packages, nil
}

func updateType(t string) domain.UpdateType {
	switch domain.UpdateType(t) {
	case domain.UpdateCriticalSecurity, domain.UpdateSecurity, domain.UpdateExperimental:
		return domain.UpdateType(t)
	default:
		return domain.UpdateFeature
	}
}

func parseReleaseDate(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Now()
}
