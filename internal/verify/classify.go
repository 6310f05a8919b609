package verify

import (
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

// Classify maps a record's source-reported status and expiry date to the
// final verdict. It is pure apart from reading the wall clock for the
// expiry comparison.
func Classify(record model.DrugRecord) model.Verdict {
	return classifyAt(record, time.Now().UTC())
}

func classifyAt(record model.DrugRecord, now time.Time) model.Verdict {
	if record.Status == "" || record.Status == model.DrugStatusUnverified {
		return model.VerdictUnverified
	}
	if record.Status == model.DrugStatusExpired {
		return model.VerdictExpired
	}
	if record.Status == model.DrugStatusVerified {
		if expiry, ok := parseExpiry(record.ExpiryDate); ok && expiry.Before(now) {
			return model.VerdictExpired
		}
		return model.VerdictVerified
	}
	return model.VerdictInvalid
}

func parseExpiry(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}
