// Package samgov talks to the public SAM.gov opportunity API. One Client
// serves as the search client, the detail fetcher and the attachment
// resolver of the harvest pipeline.
package samgov
