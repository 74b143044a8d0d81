package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
	"golang.org/x/time/rate"
)

// ProfileSite is a site with public profile pages. URLTemplate contains
// one %s for the escaped username.
type ProfileSite struct {
	Name        string
	URLTemplate string
}

// DefaultProfileSites are probed when no sites are given.
var DefaultProfileSites = []ProfileSite{
	{Name: "GitHub", URLTemplate: "https://github.com/%s"},
	{Name: "GitLab", URLTemplate: "https://gitlab.com/%s"},
	{Name: "Reddit", URLTemplate: "https://www.reddit.com/user/%s"},
	{Name: "Instagram", URLTemplate: "https://www.instagram.com/%s/"},
	{Name: "X", URLTemplate: "https://x.com/%s"},
	{Name: "Keybase", URLTemplate: "https://keybase.io/%s"},
}

// UsernameToWebsite probes profile pages of a username. Every page that
// answers 200 becomes a Website.
type UsernameToWebsite struct {
	descriptor
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	sites     []ProfileSite
}

// NewUsernameToWebsite creates the transform. Requests are limited to rps
// per second across all runs.
func NewUsernameToWebsite(client *http.Client, userAgent string, rps float64, sites ...ProfileSite) *UsernameToWebsite {
	if client == nil {
		client = http.DefaultClient
	}
	if len(sites) == 0 {
		sites = DefaultProfileSites
	}
	return &UsernameToWebsite{
		descriptor: descriptor{
			name:        "Username to Website",
			description: "Find profile pages of a username",
			inputs:      []model.EntityType{model.EntityTypeUsername},
			outputs:     []model.EntityType{model.EntityTypeWebsite},
		},
		client:    client,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		sites:     sites,
	}
}

// Run returns the found profiles. Sites that cannot be reached are
// skipped; their errors are returned with the profiles found elsewhere.
func (t *UsernameToWebsite) Run(ctx context.Context, entity *model.Entity, _ graph.Reader) ([]*model.Entity, error) {
	username := strings.TrimSpace(entity.String("username"))
	if username == "" {
		return nil, nil
	}

	var websites []*model.Entity
	var errs []error
	for _, site := range t.sites {
		profileURL := fmt.Sprintf(site.URLTemplate, url.PathEscape(username))

		found, err := t.probe(ctx, profileURL)
		if err != nil {
			if ctx.Err() != nil {
				return websites, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", site.Name, err))
			continue
		}
		if !found {
			continue
		}

		parsed, err := url.Parse(profileURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		website, err := model.NewEntity(model.EntityTypeWebsite, map[string]any{
			"url":    profileURL,
			"domain": parsed.Hostname(),
			"title":  fmt.Sprintf("%s profile of %s", site.Name, username),
			"status": "active",
			"source": "UsernameToWebsite transform",
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		websites = append(websites, website)
	}

	return websites, errors.Join(errs...)
}

func (t *UsernameToWebsite) probe(ctx context.Context, profileURL string) (bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return false, err
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	return resp.StatusCode == http.StatusOK, nil
}
