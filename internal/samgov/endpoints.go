package samgov

import (
	"net/url"
	"strings"
)

// Default upstream locations. None of them require an API key.
const (
	DefaultSearchURL          = "https://sam.gov/api/prod/sgs/v1/search/"
	DefaultDetailURL          = "https://sam.gov/api/prod/opps/v2/opportunities"
	DefaultResourcesURL       = "https://sam.gov/api/prod/opps/v3/opportunities"
	DefaultDownloadURL        = "https://sam.gov/api/prod/opps/v3/opportunities/resources/files"
	DefaultOpportunityPageURL = "https://sam.gov/opp"
	DefaultUserAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Endpoints holds the base URLs of every upstream contract.
type Endpoints struct {
	SearchURL          string
	DetailURL          string
	ResourcesURL       string
	DownloadURL        string
	OpportunityPageURL string
}

// DefaultEndpoints returns the production SAM.gov endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		SearchURL:          DefaultSearchURL,
		DetailURL:          DefaultDetailURL,
		ResourcesURL:       DefaultResourcesURL,
		DownloadURL:        DefaultDownloadURL,
		OpportunityPageURL: DefaultOpportunityPageURL,
	}
}

// withDefaults fills blank fields from DefaultEndpoints.
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.SearchURL == "" {
		e.SearchURL = d.SearchURL
	}
	if e.DetailURL == "" {
		e.DetailURL = d.DetailURL
	}
	if e.ResourcesURL == "" {
		e.ResourcesURL = d.ResourcesURL
	}
	if e.DownloadURL == "" {
		e.DownloadURL = d.DownloadURL
	}
	if e.OpportunityPageURL == "" {
		e.OpportunityPageURL = d.OpportunityPageURL
	}
	return e
}

// Detail returns the detail document URL for an opportunity.
func (e Endpoints) Detail(opportunityID string) string {
	return join(e.DetailURL, url.PathEscape(opportunityID))
}

// Resources returns the attachment manifest URL for an opportunity.
func (e Endpoints) Resources(opportunityID string) string {
	return join(e.ResourcesURL, url.PathEscape(opportunityID), "resources")
}

// Download returns the canonical file download URL for a resource.
func (e Endpoints) Download(resourceID string) string {
	return join(e.DownloadURL, url.PathEscape(resourceID), "download")
}

// OpportunityPage returns the human-facing page of an opportunity.
func (e Endpoints) OpportunityPage(opportunityID string) string {
	return join(e.OpportunityPageURL, url.PathEscape(opportunityID), "view")
}

// LinkFormat returns a fmt pattern producing OpportunityPage for an id.
func (e Endpoints) LinkFormat() string {
	return join(strings.ReplaceAll(e.OpportunityPageURL, "%", "%%"), "%s", "view")
}

func join(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
