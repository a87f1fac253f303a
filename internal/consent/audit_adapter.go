package consent

import (
	"context"
	"encoding/json"

	"empathy-ledger/internal/audit"
	"empathy-ledger/pkg/logger"
)

// AuditAdapter bridges the engine's AccessLogger to the audit service.
// It absorbs audit failures: a broken log pipeline must never block a
// consented disclosure.
type AuditAdapter struct {
	Audit *audit.Service
}

func NewAuditAdapter(a *audit.Service) *AuditAdapter { return &AuditAdapter{Audit: a} }

func (a *AuditAdapter) LogAccess(ctx context.Context, storyID string, requestor RequestorContext, accessType AccessType) {
	if a == nil || a.Audit == nil {
		return
	}

	var appID *string
	if requestor.AppID != "" {
		id := requestor.AppID
		appID = &id
	}

	err := a.Audit.LogStoryAccess(ctx, audit.StoryAccess{
		StoryID:   storyID,
		AppID:     appID,
		Type:      audit.AccessType(accessType),
		IP:        requestor.IP,
		UserAgent: requestor.UserAgent,
		Context:   accessContext(requestor),
	})
	if err != nil {
		logger.From(ctx).Error("access log write failed",
			"story_id", storyID, "requestor_type", string(requestor.Type), "err", err)
	}
}

// accessContext captures the non-column request details as a JSON blob.
func accessContext(r RequestorContext) string {
	blob := map[string]string{"requestor_type": string(r.Type)}
	if r.Domain != "" {
		blob["domain"] = r.Domain
	}
	if r.AppName != "" {
		blob["app_name"] = r.AppName
	}
	b, err := json.Marshal(blob)
	if err != nil {
		return ""
	}
	return string(b)
}
