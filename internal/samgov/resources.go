package samgov

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/docpath"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

const unknownFilename = "unknown"

// ListAttachments returns the non-deleted manifest entries of an
// opportunity. Non-public entries are returned pre-marked as skipped. Any
// upstream failure yields an empty list.
func (c *Client) ListAttachments(ctx context.Context, opportunityID string) []harvest.AttachmentDescriptor {
	doc, err := c.getJSON(ctx, "resources", c.endpoints.Resources(opportunityID))
	if err != nil {
		c.logger.Warn("failed to get attachment manifest",
			zap.String("opportunity_id", opportunityID), zap.Error(err))
		return []harvest.AttachmentDescriptor{}
	}
	out := c.endpoints.DescriptorsFromManifest(doc)
	for _, d := range out {
		if d.Status == harvest.AttachmentSkipped {
			c.logger.Info("skipping non-public file",
				zap.String("opportunity_id", opportunityID),
				zap.String("filename", d.Filename),
				zap.String("access_level", d.AccessLevel))
		}
	}
	return out
}

// DescriptorsFromManifest flattens every attachment group of a manifest
// document into descriptors.
func (e Endpoints) DescriptorsFromManifest(doc any) []harvest.AttachmentDescriptor {
	out := []harvest.AttachmentDescriptor{}
	for _, group := range docpath.Slice(doc, "_embedded", "opportunityAttachmentList") {
		for _, raw := range docpath.Slice(group, "attachments") {
			if _, ok := raw.(map[string]any); !ok {
				continue
			}
			if isDeleted(raw) {
				continue
			}
			resourceID, _ := docpath.String(raw, "resourceId")
			if strings.TrimSpace(resourceID) == "" {
				continue
			}
			d := harvest.AttachmentDescriptor{
				Filename:    stringOr(raw, "name", unknownFilename),
				ResourceID:  resourceID,
				AccessLevel: stringOr(raw, "accessLevel", harvest.AccessLevelPublic),
				DownloadURL: e.Download(resourceID),
			}
			d.MimeType, _ = docpath.String(raw, "mimeType")
			d.Size, _ = docpath.Int(raw, "size")
			d.PostedDate, _ = docpath.String(raw, "postedDate")
			if !d.IsPublic() {
				d.Status = harvest.AttachmentSkipped
				d.DownloadError = harvest.SkipReasonNonPublic
			}
			out = append(out, d)
		}
	}
	return out
}

func isDeleted(entry any) bool {
	if s, ok := docpath.String(entry, "deletedFlag"); ok {
		return s == "1" || strings.EqualFold(s, "true")
	}
	return false
}

func stringOr(doc any, key, fallback string) string {
	if s, ok := docpath.String(doc, key); ok && s != "" {
		return s
	}
	return fallback
}
