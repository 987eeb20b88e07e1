package samgov

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/docpath"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

const (
	defaultPageSize  = 25
	postedFromLayout = "01/02/2006"
)

// Search fetches one zero-based page of opportunity summaries. A page with
// no results yields an empty slice and no error.
func (c *Client) Search(ctx context.Context, filter harvest.SearchFilter, page int) ([]harvest.OpportunitySummary, error) {
	now := time.Now()
	if c.clock != nil {
		now = c.clock.Now()
	}
	rawURL, err := buildSearchURL(c.endpoints.SearchURL, filter, page, now)
	if err != nil {
		return nil, err
	}
	doc, err := c.getJSON(ctx, "search", rawURL)
	if err != nil {
		return nil, fmt.Errorf("search page %d: %w", page, err)
	}
	results := docpath.Slice(doc, "_embedded", "results")
	out := make([]harvest.OpportunitySummary, 0, len(results))
	for _, raw := range results {
		if _, ok := raw.(map[string]any); !ok {
			continue
		}
		out = append(out, summaryFromDoc(raw))
	}
	c.logger.Info("search page fetched", zap.Int("page", page+1), zap.Int("results", len(out)))
	return out, nil
}

// SearchQuery translates a filter into upstream query parameters. List
// filters are comma-joined and omitted when empty.
func SearchQuery(filter harvest.SearchFilter, page int, now time.Time) url.Values {
	size := filter.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	q := url.Values{}
	q.Set("random", strconv.FormatInt(now.Unix(), 10))
	q.Set("index", "opp")
	q.Set("page", strconv.Itoa(page))
	q.Set("mode", "search")
	q.Set("sort", "-modifiedDate")
	q.Set("size", strconv.Itoa(size))
	q.Set("is_active", "true")
	if kw := strings.TrimSpace(filter.Keywords); kw != "" {
		q.Set("q", kw)
	}
	setList(q, "naics", filter.NAICSCodes)
	if from, ok := filter.PostedFrom(now); ok {
		q.Set("postedFrom", from.Format(postedFromLayout))
	}
	setList(q, "typeOfSetAside", filter.SetAsideTypes)
	setList(q, "state", filter.States)
	setList(q, "opp_type", filter.OpportunityTypes)
	return q
}

func buildSearchURL(base string, filter harvest.SearchFilter, page int, now time.Time) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	u.RawQuery = SearchQuery(filter, page, now).Encode()
	return u.String(), nil
}

func setList(q url.Values, key string, values []string) {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) > 0 {
		q.Set(key, strings.Join(kept, ","))
	}
}

func summaryFromDoc(doc any) harvest.OpportunitySummary {
	s := harvest.OpportunitySummary{}
	s.ID, _ = docpath.String(doc, "_id")
	s.Title, _ = docpath.String(doc, "title")
	s.SolicitationNumber, _ = docpath.String(doc, "solicitationNumber")
	s.Description, _ = docpath.String(doc, "descriptions", 0, "content")
	s.TypeValue, _ = docpath.String(doc, "type", "value")
	s.TypeCode, _ = docpath.String(doc, "type", "code")
	s.PostedDate, _ = docpath.String(doc, "publishDate")
	s.ModifiedDate, _ = docpath.String(doc, "modifiedDate")
	s.ResponseDeadline, _ = docpath.String(doc, "responseDate")
	s.ResponseTimeZone, _ = docpath.String(doc, "responseTimeZone")
	s.IsActive = docpath.BoolPtr(doc, "isActive")
	s.IsCanceled = docpath.BoolPtr(doc, "isCanceled")
	for _, raw := range docpath.Slice(doc, "organizationHierarchy") {
		name, _ := docpath.String(raw, "name")
		code, _ := docpath.String(raw, "code")
		if name == "" && code == "" {
			continue
		}
		s.Organization = append(s.Organization, harvest.OrgUnit{Name: name, Code: code})
	}
	return s
}
