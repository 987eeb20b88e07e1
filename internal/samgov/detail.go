package samgov

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/docpath"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// FetchDetail returns the normalized detail document, or nil on any
// transport or status failure.
func (c *Client) FetchDetail(ctx context.Context, opportunityID string) *harvest.Detail {
	doc, err := c.getJSON(ctx, "detail", c.endpoints.Detail(opportunityID))
	if err != nil {
		c.logger.Warn("failed to get opportunity details",
			zap.String("opportunity_id", opportunityID), zap.Error(err))
		return nil
	}
	return DetailFromDoc(doc)
}

// DetailFromDoc maps the upstream detail document. Missing or mistyped
// sub-objects leave the corresponding fields nil.
func DetailFromDoc(doc any) *harvest.Detail {
	data, ok := docpath.Map(doc, "data2")
	if !ok {
		return &harvest.Detail{}
	}
	d := &harvest.Detail{
		NAICSCode:           docpath.StringPtr(data, "naics", 0, "code", 0),
		PSCCode:             docpath.StringPtr(data, "classificationCode"),
		SetAsideCode:        docpath.StringPtr(data, "typeOfSetAside", "code"),
		SetAsideDescription: docpath.StringPtr(data, "typeOfSetAside", "value"),
	}
	if pop, ok := docpath.Map(data, "placeOfPerformance"); ok {
		d.PlaceOfPerformance = &harvest.PlaceOfPerformance{
			City:        docpath.StringPtr(pop, "city", "name"),
			State:       docpath.StringPtr(pop, "state", "name"),
			StateCode:   docpath.StringPtr(pop, "state", "code"),
			Country:     docpath.StringPtr(pop, "country", "name"),
			CountryCode: docpath.StringPtr(pop, "country", "code"),
		}
	}
	for _, raw := range docpath.Slice(data, "pointOfContact") {
		if _, ok := raw.(map[string]any); !ok {
			continue
		}
		d.Contacts = append(d.Contacts, harvest.Contact{
			Name:  docpath.StringPtr(raw, "fullName"),
			Email: docpath.StringPtr(raw, "email"),
			Phone: docpath.StringPtr(raw, "phone"),
			Fax:   docpath.StringPtr(raw, "fax"),
			Title: docpath.StringPtr(raw, "title"),
			Role:  docpath.StringPtr(raw, "type"),
		})
	}
	if award, ok := docpath.Map(data, "award"); ok {
		a := &harvest.Award{
			Awardee:    docpath.StringPtr(award, "awardee", "name"),
			AwardeeUEI: docpath.StringPtr(award, "awardee", "ueiSAM"),
		}
		if amount, ok := docpath.Float(award, "amount"); ok {
			a.Amount = &amount
		}
		d.Award = a
	}
	return d
}
