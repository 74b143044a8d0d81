package transform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
)

const maxPageBytes = 5 << 20

// WebsiteToText fetches a page and returns its readable text.
type WebsiteToText struct {
	descriptor
	client    *http.Client
	userAgent string
	maxRunes  int
}

// NewWebsiteToText creates the transform. Text longer than maxRunes is
// cut, zero keeps the whole text.
func NewWebsiteToText(client *http.Client, userAgent string, maxRunes int) *WebsiteToText {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebsiteToText{
		descriptor: descriptor{
			name:        "Website to Text",
			description: "Extract the readable text of a website",
			inputs:      []model.EntityType{model.EntityTypeWebsite},
			outputs:     []model.EntityType{model.EntityTypeText},
		},
		client:    client,
		userAgent: userAgent,
		maxRunes:  maxRunes,
	}
}

func (t *WebsiteToText) Run(ctx context.Context, entity *model.Entity, _ graph.Reader) ([]*model.Entity, error) {
	rawURL := strings.TrimSpace(entity.String("url"))
	if rawURL == "" {
		if domain := entity.String("domain"); domain != "" {
			rawURL = "https://" + domain
		} else {
			return nil, nil
		}
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		article, err := readability.FromReader(body, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return nil, fmt.Errorf("failed to render article text: %w", err)
		}
		text = builder.String()
	} else {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		text = string(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if runes := []rune(text); t.maxRunes > 0 && len(runes) > t.maxRunes {
		text = string(runes[:t.maxRunes])
	}

	result, err := model.NewEntity(model.EntityTypeText, map[string]any{
		"text":   text,
		"source": pageURL.String(),
	})
	if err != nil {
		return nil, err
	}
	return []*model.Entity{result}, nil
}
