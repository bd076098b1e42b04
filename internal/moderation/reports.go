package moderation

import (
	"context"
	"strings"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// CreateViolationReport files a freestanding report. It shares the rate
// limiter with submissions but sits outside the Message/Comment lifecycle.
func (e *Engine) CreateViolationReport(ctx context.Context, in CreateViolationReportInput) (models.ViolationReport, error) {
	kind := models.ViolationType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	description := strings.TrimSpace(in.Description)
	messageID := strings.TrimSpace(in.MessageID)
	if !kind.Valid() {
		return models.ViolationReport{}, ValidationFailed("type", "unknown violation type")
	}
	if err := e.Validator.Validate(description, FieldViolationDescription).Err(); err != nil {
		return models.ViolationReport{}, err
	}
	if messageID != "" {
		msg, err := e.Messages.Get(ctx, messageID)
		if err != nil {
			return models.ViolationReport{}, err
		}
		if msg.Moderation.IsDeleted {
			return models.ViolationReport{}, NotFound(messageID)
		}
	}
	if err := e.admit(ctx, in.Client.ID, Request{Policy: PolicyViolationReport}); err != nil {
		return models.ViolationReport{}, err
	}

	now := e.now()
	report := models.ViolationReport{
		Type:                kind,
		Description:         description,
		MessageID:           messageID,
		ReporterFingerprint: in.Client.Fingerprint,
		Status:              models.ReportPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.Reports.Create(ctx, &report); err != nil {
		return models.ViolationReport{}, e.logError("moderation_violation_report_create_failed", err)
	}
	e.log().Info("violation report filed",
		"event", "moderation_violation_reported",
		"module", "moderation",
		"layer", "application",
		"report_id", report.ID,
		"type", string(kind),
		"message_id", messageID,
	)
	publish(e.Publisher, ctx, Event{Type: EventViolationReported, ID: report.ID, MessageID: messageID, At: now})
	return report, nil
}

// ListViolationReports returns reports newest first; filter.Status selects a
// review state.
func (e *Engine) ListViolationReports(ctx context.Context, filter Filter) ([]models.ViolationReport, error) {
	status := models.ReportStatus(strings.ToLower(strings.TrimSpace(filter.Status)))
	filter.Status = ""
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	if status != "" && !validReportStatus(status) {
		return nil, ValidationFailed("status", "must be pending, reviewed or dismissed")
	}
	f.Status = string(status)
	f.Deleted = IncludeDeleted
	return e.Reports.Query(ctx, f)
}

// ReviewViolationReport closes a report as reviewed or dismissed.
func (e *Engine) ReviewViolationReport(ctx context.Context, id string, status models.ReportStatus, reviewerID string) (models.ViolationReport, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return models.ViolationReport{}, ValidationFailed("reviewerId", "is required")
	}
	if status != models.ReportReviewed && status != models.ReportDismissed {
		return models.ViolationReport{}, ValidationFailed("status", "must be reviewed or dismissed")
	}
	report, err := e.Reports.Update(ctx, id, func(r *models.ViolationReport) error {
		now := e.now()
		r.Status = status
		r.ReviewedBy = reviewerID
		r.ReviewedAt = &now
		r.Touch(now)
		return nil
	})
	if err != nil {
		return models.ViolationReport{}, err
	}
	publish(e.Publisher, ctx, Event{Type: EventViolationReviewed, ID: report.ID, MessageID: report.MessageID, At: report.UpdatedAt})
	return report, nil
}

func validReportStatus(s models.ReportStatus) bool {
	switch s {
	case models.ReportPending, models.ReportReviewed, models.ReportDismissed:
		return true
	}
	return false
}
