package harvest

import (
	"time"
)

// MaxExtractedTextChars bounds the text kept per extracted attachment.
const MaxExtractedTextChars = 50000

// AccessLevelPublic is the only manifest access level that may be downloaded.
const AccessLevelPublic = "public"

// AttachmentStatus describes the terminal outcome of an attachment.
type AttachmentStatus string

// Attachment outcomes. Skipped is a policy decision and never a download attempt.
const (
	AttachmentDownloaded AttachmentStatus = "downloaded"
	AttachmentSkipped    AttachmentStatus = "skipped"
	AttachmentFailed     AttachmentStatus = "failed"
)

// Outcome messages written to AttachmentDescriptor.DownloadError.
const (
	SkipReasonNonPublic = "Non-public access level"
	ManualFallbackHint  = "Use downloadUrl to fetch manually from browser."
)

// OrgUnit is one level of the owning organization hierarchy.
type OrgUnit struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// OpportunitySummary is the lightweight record returned by a search page.
type OpportunitySummary struct {
	ID                 string    `json:"opportunityId"`
	Title              string    `json:"title"`
	SolicitationNumber string    `json:"solicitationNumber,omitempty"`
	Description        string    `json:"description,omitempty"`
	TypeValue          string    `json:"type,omitempty"`
	TypeCode           string    `json:"typeCode,omitempty"`
	Organization       []OrgUnit `json:"organizationHierarchy,omitempty"`
	PostedDate         string    `json:"postedDate,omitempty"`
	ModifiedDate       string    `json:"modifiedDate,omitempty"`
	ResponseDeadline   string    `json:"responseDeadline,omitempty"`
	ResponseTimeZone   string    `json:"responseTimeZone,omitempty"`
	IsActive           *bool     `json:"isActive,omitempty"`
	IsCanceled         *bool     `json:"isCanceled,omitempty"`
}

// Agency returns the top-level organization name, if any.
func (s OpportunitySummary) Agency() *string {
	if len(s.Organization) == 0 || s.Organization[0].Name == "" {
		return nil
	}
	name := s.Organization[0].Name
	return &name
}

// SubAgency returns the second organization level, if any.
func (s OpportunitySummary) SubAgency() *string {
	if len(s.Organization) < 2 || s.Organization[1].Name == "" {
		return nil
	}
	name := s.Organization[1].Name
	return &name
}

// Office returns the owning (last) organization level, if any.
func (s OpportunitySummary) Office() *string {
	if len(s.Organization) == 0 {
		return nil
	}
	name := s.Organization[len(s.Organization)-1].Name
	if name == "" {
		return nil
	}
	return &name
}

// PlaceOfPerformance holds location fields; each may be absent.
type PlaceOfPerformance struct {
	City        *string `json:"city"`
	State       *string `json:"state"`
	StateCode   *string `json:"stateCode"`
	Country     *string `json:"country"`
	CountryCode *string `json:"countryCode"`
}

// Contact is a point of contact listed on the detail document.
type Contact struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
	Fax   *string `json:"fax"`
	Title *string `json:"title"`
	Role  *string `json:"type"`
}

// Award is present only for award notices.
type Award struct {
	Amount     *float64 `json:"amount"`
	Awardee    *string  `json:"awardee"`
	AwardeeUEI *string  `json:"awardeeUei"`
}

// Detail is the normalized detail document. Every field may be absent.
type Detail struct {
	NAICSCode           *string
	PSCCode             *string
	SetAsideCode        *string
	SetAsideDescription *string
	PlaceOfPerformance  *PlaceOfPerformance
	Contacts            []Contact
	Award               *Award
}

// AttachmentDescriptor describes one manifest entry and its acquisition outcome.
// The outcome fields are written once by the acquirer.
type AttachmentDescriptor struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"type"`
	Size        int64  `json:"size"`
	ResourceID  string `json:"resourceId"`
	AccessLevel string `json:"accessLevel"`
	PostedDate  string `json:"postedDate,omitempty"`
	DownloadURL string `json:"downloadUrl"`

	Status         AttachmentStatus `json:"status,omitempty"`
	StorageKey     string           `json:"storageKey,omitempty"`
	StorageURI     string           `json:"storageUri,omitempty"`
	DownloadedSize int64            `json:"downloadedSize,omitempty"`
	ContentHash    string           `json:"contentHash,omitempty"`
	Strategy       string           `json:"downloadStrategy,omitempty"`
	DownloadError  string           `json:"downloadError,omitempty"`
}

// IsPublic reports whether the entry may be handed to the acquirer.
func (d AttachmentDescriptor) IsPublic() bool {
	return d.AccessLevel == AccessLevelPublic
}

// Resolved reports whether an outcome has already been recorded.
func (d AttachmentDescriptor) Resolved() bool {
	return d.Status != ""
}

// ExtractedText is the bounded text of one downloaded document.
type ExtractedText struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// OpportunityRecord is the canonical output unit pushed to the record sink.
type OpportunityRecord struct {
	OpportunityID      string                 `json:"opportunityId"`
	SolicitationNumber *string                `json:"solicitationNumber"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	Type               *string                `json:"type"`
	TypeCode           *string                `json:"typeCode"`
	PostedDate         *string                `json:"postedDate"`
	ModifiedDate       *string                `json:"modifiedDate"`
	ResponseDeadline   *string                `json:"responseDeadline"`
	ResponseTimeZone   *string                `json:"responseTimeZone"`
	IsActive           *bool                  `json:"isActive"`
	IsCanceled         *bool                  `json:"isCanceled"`
	AgencyName         *string                `json:"agencyName"`
	SubAgencyName      *string                `json:"subAgencyName"`
	OfficeName         *string                `json:"officeName"`
	Organization       []OrgUnit              `json:"organizationHierarchy"`
	Link               string                 `json:"samGovLink"`
	NAICSCode          *string                `json:"naicsCode"`
	PSCCode            *string                `json:"pscCode"`
	SetAsideType       *string                `json:"setAsideType"`
	SetAsideDesc       *string                `json:"setAsideDescription"`
	PlaceOfPerformance *PlaceOfPerformance    `json:"placeOfPerformance"`
	Contacts           []Contact              `json:"contacts"`
	Award              *Award                 `json:"award"`
	Attachments        []AttachmentDescriptor `json:"attachments"`
	AttachmentTexts    []ExtractedText        `json:"attachmentTexts"`
	HarvestRunID       string                 `json:"harvestRunId"`
	ScrapedAt          time.Time              `json:"scrapedAt"`
}
