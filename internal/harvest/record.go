package harvest

import "time"

// NewRecord assembles the canonical record from a summary and an optional
// detail document. A nil detail leaves every detail-derived field absent.
func NewRecord(summary OpportunitySummary, detail *Detail, runID, link string, capturedAt time.Time) OpportunityRecord {
	rec := OpportunityRecord{
		OpportunityID:      summary.ID,
		SolicitationNumber: optional(summary.SolicitationNumber),
		Title:              summary.Title,
		Description:        summary.Description,
		Type:               optional(summary.TypeValue),
		TypeCode:           optional(summary.TypeCode),
		PostedDate:         optional(summary.PostedDate),
		ModifiedDate:       optional(summary.ModifiedDate),
		ResponseDeadline:   optional(summary.ResponseDeadline),
		ResponseTimeZone:   optional(summary.ResponseTimeZone),
		IsActive:           summary.IsActive,
		IsCanceled:         summary.IsCanceled,
		AgencyName:         summary.Agency(),
		SubAgencyName:      summary.SubAgency(),
		OfficeName:         summary.Office(),
		Organization:       append([]OrgUnit(nil), summary.Organization...),
		Link:               link,
		Attachments:        []AttachmentDescriptor{},
		AttachmentTexts:    []ExtractedText{},
		HarvestRunID:       runID,
		ScrapedAt:          capturedAt.UTC(),
	}
	if detail == nil {
		return rec
	}
	rec.NAICSCode = detail.NAICSCode
	rec.PSCCode = detail.PSCCode
	rec.SetAsideType = detail.SetAsideCode
	rec.SetAsideDesc = detail.SetAsideDescription
	rec.PlaceOfPerformance = detail.PlaceOfPerformance
	rec.Contacts = append([]Contact(nil), detail.Contacts...)
	rec.Award = detail.Award
	return rec
}

// TruncateText caps s at MaxExtractedTextChars characters (runes).
func TruncateText(s string) string {
	count := 0
	for i := range s {
		if count == MaxExtractedTextChars {
			return s[:i]
		}
		count++
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
