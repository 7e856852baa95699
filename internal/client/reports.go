package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/reportextract/internal/domain"
)

// maxPages bounds pagination in case a server keeps returning next links.
const maxPages = 1000

// ReportsClient reads report mapping membership.
type ReportsClient struct {
	client  *resty.Client
	baseURL string
	token   TokenProvider
}

// NewReportsClient creates a Reports API client.
func NewReportsClient(cfg *Config) *ReportsClient {
	return &ReportsClient{
		client:  newRestyClient(cfg),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

type link struct {
	Href string `json:"href"`
}

type mappingsPage struct {
	Mappings []domain.IModelMapping `json:"mappings"`
	Links    struct {
		Next *link `json:"next,omitempty"`
	} `json:"_links"`
}

// GetMappings returns every (iModel, mapping) pair of reportID, following
// next links until the last page.
func (c *ReportsClient) GetMappings(ctx context.Context, reportID string) ([]domain.IModelMapping, error) {
	var mappings []domain.IModelMapping

	next := c.baseURL + "/reports/" + url.PathEscape(reportID) + "/datasources/imodelMappings"
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("get mappings of report %s: more than %d pages", reportID, maxPages)
		}

		req, err := newRequest(ctx, c.client, c.token)
		if err != nil {
			return nil, err
		}

		var result mappingsPage
		resp, err := req.SetResult(&result).Get(next)
		if err != nil {
			return nil, fmt.Errorf("failed to call reports API: %w", err)
		}
		if err := checkResponse(resp); err != nil {
			return nil, fmt.Errorf("get mappings of report %s: %w", reportID, err)
		}

		mappings = append(mappings, result.Mappings...)

		next = ""
		if result.Links.Next != nil && result.Links.Next.Href != "" {
			next, err = c.resolveNext(result.Links.Next.Href)
			if err != nil {
				return nil, fmt.Errorf("get mappings of report %s: %w", reportID, err)
			}
		}
	}

	return mappings, nil
}

// resolveNext resolves a next link against the base URL. Links pointing at
// another scheme or host are refused so the token never leaves the API.
func (c *ReportsClient) resolveNext(href string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	next, err := base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid next link %q: %w", href, err)
	}
	if !strings.EqualFold(next.Scheme, base.Scheme) || !strings.EqualFold(next.Host, base.Host) {
		return "", fmt.Errorf("next link %q leaves %s://%s", href, base.Scheme, base.Host)
	}
	return next.String(), nil
}
