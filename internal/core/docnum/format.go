package docnum

import (
	"fmt"
	"time"

	"numera/internal/core/apperror"
)

// PeriodKey identifies the counter a document type draws numbers from.
// Continuous types share one constant key across all time.
type PeriodKey struct {
	Kind  ResetPolicy
	Year  int
	Month int
	Day   int
}

// PeriodKeyFor computes the counter key for a type's reset policy and a
// reference date.
func PeriodKeyFor(cfg TypeConfig, refDate time.Time) PeriodKey {
	year, month, day := refDate.Date()
	switch cfg.Reset {
	case ResetDaily:
		return PeriodKey{Kind: ResetDaily, Year: year, Month: int(month), Day: day}
	case ResetMonthly:
		return PeriodKey{Kind: ResetMonthly, Year: year, Month: int(month)}
	case ResetYearly:
		return PeriodKey{Kind: ResetYearly, Year: year}
	default:
		return PeriodKey{Kind: ResetContinuous}
	}
}

// String renders the key for logging and cache maps.
func (k PeriodKey) String() string {
	switch k.Kind {
	case ResetDaily:
		return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
	case ResetMonthly:
		return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
	case ResetYearly:
		return fmt.Sprintf("%04d", k.Year)
	default:
		return "continuous"
	}
}

// Format renders the official number for a document type, reference date and
// sequence value. The output is checked against the type's expected pattern
// before being returned: a mismatch is a programming error and surfaces as
// INVALID_NUMBER_FORMAT rather than a silently wrong number.
func Format(docType DocType, refDate time.Time, sequence int64) (string, error) {
	cfg, err := ConfigFor(docType)
	if err != nil {
		return "", err
	}

	seq := fmt.Sprintf("%0*d", cfg.PadWidth, sequence)

	var number string
	if cfg.Reset == ResetContinuous {
		number = fmt.Sprintf("%s-%s", cfg.Prefix, seq)
	} else {
		// Daily and monthly types converted to the yearly rendering for
		// consistency; the counter key still resets on their own period.
		number = fmt.Sprintf("%s-%04d-%s", cfg.Prefix, refDate.Year(), seq)
	}

	if !cfg.pattern.MatchString(number) {
		return "", apperror.NewInvalidFormat(number, cfg.pattern.String())
	}

	return number, nil
}
