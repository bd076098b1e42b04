package moderation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// Field names a validated input and selects its bounds.
type Field string

const (
	FieldMessage              Field = "content"
	FieldComment              Field = "comment"
	FieldAuthorName           Field = "authorName"
	FieldRejectionReason      Field = "rejectionReason"
	FieldReportReason         Field = "reason"
	FieldViolationDescription Field = "description"
)

type bounds struct{ min, max int }

var fieldBounds = map[Field]bounds{
	FieldMessage:              {1, 280},
	FieldComment:              {1, 500},
	FieldAuthorName:           {2, 50},
	FieldRejectionReason:      {1, 200},
	FieldReportReason:         {1, 200},
	FieldViolationDescription: {10, 1000},
}

const maxSpecialRun = 10

const (
	WarningURL   = "contains_url"
	WarningEmail = "contains_email"
	WarningPhone = "contains_phone"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+|\b[a-z0-9-]+\.(?:com|net|org|io|ru|xyz|info|biz|me|ly)\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d(?:[\s.-]?\d){8,14}`)
)

// ValidationResult is the outcome of a content check. Warnings are advisory.
type ValidationResult struct {
	Valid    bool
	Field    Field
	Reason   string
	Warnings []string
}

// Err converts a failed result into a ValidationFailed error, or nil.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return ValidationFailed(string(r.Field), r.Reason)
}

// Validator applies structural checks before any state is created. With
// BlockLinks set, URL/e-mail/phone warnings become failures.
type Validator struct {
	BlockLinks bool
}

// Validate checks trimmed content against the bounds of field. It panics on
// an unknown field, which is a programming error.
func (v Validator) Validate(content string, field Field) ValidationResult {
	b, ok := fieldBounds[field]
	if !ok {
		panic(fmt.Sprintf("moderation: unknown field %q", field))
	}
	res := ValidationResult{Valid: true, Field: field}
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	switch {
	case n == 0 && b.min > 0:
		return res.fail("is required")
	case n < b.min:
		return res.fail(fmt.Sprintf("must be at least %d characters", b.min))
	case n > b.max:
		return res.fail(fmt.Sprintf("must be at most %d characters", b.max))
	}
	if longestSpecialRun(content) > maxSpecialRun {
		return res.fail("contains an excessive run of special characters")
	}

	if urlPattern.MatchString(content) {
		res.Warnings = append(res.Warnings, WarningURL)
	}
	if emailPattern.MatchString(content) {
		res.Warnings = append(res.Warnings, WarningEmail)
	}
	if phonePattern.MatchString(content) {
		res.Warnings = append(res.Warnings, WarningPhone)
	}
	if v.BlockLinks && len(res.Warnings) > 0 {
		return res.fail("links, e-mail addresses and phone numbers are not allowed")
	}
	return res
}

// ValidateOptional is Validate for fields that may be omitted entirely.
func (v Validator) ValidateOptional(content string, field Field) ValidationResult {
	if strings.TrimSpace(content) == "" {
		return ValidationResult{Valid: true, Field: field}
	}
	return v.Validate(content, field)
}

// ValidateColor checks color against the closed palette.
func (v Validator) ValidateColor(color string) ValidationResult {
	if slices.Contains(models.Palette, color) {
		return ValidationResult{Valid: true, Field: "color"}
	}
	return ValidationResult{Field: "color", Reason: "must be one of " + strings.Join(models.Palette, ", ")}
}

func (r ValidationResult) fail(reason string) ValidationResult {
	r.Valid = false
	r.Reason = reason
	return r
}

func longestSpecialRun(s string) int {
	longest, run := 0, 0
	for _, r := range s {
		if isSpecial(r) {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}

// Emoji (unicode.So) are deliberately not special.
func isSpecial(r rune) bool {
	return unicode.IsPunct(r) || unicode.In(r, unicode.Sm, unicode.Sc, unicode.Sk)
}
