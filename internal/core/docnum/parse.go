package docnum

import (
	"strconv"
	"strings"
)

// NumberKind tags which format a parsed number was recognized as.
// Adding another historical format later means adding a variant here and a
// branch in parseLegacy, nothing else.
type NumberKind int

const (
	KindCanonical NumberKind = iota
	KindLegacy
)

// ParsedNumber is the decoded form of a document number.
// Year/Month/Day are zero when the format does not encode them.
type ParsedNumber struct {
	Kind     NumberKind
	Type     DocType
	Prefix   string
	Year     int
	Month    int
	Day      int
	Sequence int64
}

// Parse decodes a document number. The canonical PREFIX-YYYY-NNNNNN /
// PREFIX-NNNNNN patterns are tried first; the compact legacy formats are
// attempted only when the canonical pattern does not match.
// Returns ok=false for unrecognized input.
func Parse(number string) (ParsedNumber, bool) {
	parts := strings.Split(number, "-")
	if len(parts) < 2 {
		return parseLegacy(number)
	}

	docType, ok := TypeForPrefix(parts[0])
	if !ok {
		return ParsedNumber{}, false
	}
	cfg := typeConfigs[docType]

	if cfg.Reset == ResetContinuous {
		if len(parts) != 2 {
			return ParsedNumber{}, false
		}
		seq, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ParsedNumber{}, false
		}
		return ParsedNumber{
			Kind:     KindCanonical,
			Type:     docType,
			Prefix:   cfg.Prefix,
			Sequence: seq,
		}, true
	}

	if len(parts) != 3 {
		return ParsedNumber{}, false
	}
	year, yearErr := strconv.Atoi(parts[1])
	seq, seqErr := strconv.ParseInt(parts[2], 10, 64)
	if yearErr != nil || seqErr != nil || year < 2020 || year > 2099 {
		return ParsedNumber{}, false
	}
	return ParsedNumber{
		Kind:     KindCanonical,
		Type:     docType,
		Prefix:   cfg.Prefix,
		Year:     year,
		Sequence: seq,
	}, true
}

// legacyPrefix maps a historical prefix to its document type.
// Order matters: the first matching prefix wins, as in the original
// numbering scheme.
type legacyPrefix struct {
	prefix  string
	docType DocType
}

var legacyPrefixes = []legacyPrefix{
	{"FTB", TypeInvoice},
	{"FA", TypeDepositInvoice},
	{"D", TypeQuote},
	{"BC", TypePurchaseOrder},
	{"BL", TypeDeliveryNote},
	{"RFT", TypeReceptionReport},
	{"AV", TypeCreditNote},
	{"CLI", TypeClient},
	{"L", TypeLead},
	{"PRJ", TypeProject},
}

// parseLegacy decodes compact historical numbers issued before the readable
// format: fixed-width date-then-sequence digit blocks with no separators.
//
//	daily      DDMMYYNNNN (10 digits, invoices only)
//	monthly    MMYYNNNN   (8 digits)
//	yearly     YYNNNN     (6 digits, projects only)
//	continuous NNNN       (4 digits, client codes only)
func parseLegacy(number string) (ParsedNumber, bool) {
	for _, lp := range legacyPrefixes {
		if !strings.HasPrefix(number, lp.prefix) {
			continue
		}
		rest := number[len(lp.prefix):]

		if len(rest) == 10 && (lp.docType == TypeInvoice || lp.docType == TypeDepositInvoice) {
			day, dayErr := strconv.Atoi(rest[0:2])
			month, monthErr := strconv.Atoi(rest[2:4])
			yearShort, yearErr := strconv.Atoi(rest[4:6])
			seq, seqErr := strconv.ParseInt(rest[6:], 10, 64)
			if dayErr == nil && monthErr == nil && yearErr == nil && seqErr == nil {
				return ParsedNumber{
					Kind:     KindLegacy,
					Type:     lp.docType,
					Prefix:   lp.prefix,
					Day:      day,
					Month:    month,
					Year:     2000 + yearShort,
					Sequence: seq,
				}, true
			}
		}

		if len(rest) == 8 {
			month, monthErr := strconv.Atoi(rest[0:2])
			yearShort, yearErr := strconv.Atoi(rest[2:4])
			seq, seqErr := strconv.ParseInt(rest[4:], 10, 64)
			if monthErr == nil && yearErr == nil && seqErr == nil {
				return ParsedNumber{
					Kind:     KindLegacy,
					Type:     lp.docType,
					Prefix:   lp.prefix,
					Month:    month,
					Year:     2000 + yearShort,
					Sequence: seq,
				}, true
			}
		}

		if len(rest) == 6 && lp.docType == TypeProject {
			yearShort, yearErr := strconv.Atoi(rest[0:2])
			seq, seqErr := strconv.ParseInt(rest[2:], 10, 64)
			if yearErr == nil && seqErr == nil {
				return ParsedNumber{
					Kind:     KindLegacy,
					Type:     lp.docType,
					Prefix:   lp.prefix,
					Year:     2000 + yearShort,
					Sequence: seq,
				}, true
			}
		}

		if len(rest) == 4 && lp.docType == TypeClient {
			seq, seqErr := strconv.ParseInt(rest, 10, 64)
			if seqErr == nil {
				return ParsedNumber{
					Kind:     KindLegacy,
					Type:     lp.docType,
					Prefix:   lp.prefix,
					Sequence: seq,
				}, true
			}
		}
	}

	return ParsedNumber{}, false
}

// Validation is the result of checking a document number string.
type Validation struct {
	Valid    bool
	Type     DocType
	IsLegacy bool
	Error    string
}

// maxLegacySequence is the highest value the 4-digit legacy blocks can carry.
const (
	maxLegacySequence    = 9999
	maxCanonicalSequence = 999999
)

// Validate checks a document number against both the canonical and legacy
// formats, including date-part ranges. Legacy day validation is deliberately
// permissive (1-31, no per-month calendar) to accept historically issued data.
func Validate(number string) Validation {
	parsed, ok := Parse(number)
	if !ok {
		return Validation{Error: "invalid document number format"}
	}

	v := Validation{
		Type:     parsed.Type,
		IsLegacy: parsed.Kind == KindLegacy,
	}

	if parsed.Day != 0 && (parsed.Day < 1 || parsed.Day > 31) {
		v.Error = "invalid day in document number"
		return v
	}
	if parsed.Month != 0 && (parsed.Month < 1 || parsed.Month > 12) {
		v.Error = "invalid month in document number"
		return v
	}
	if parsed.Year != 0 && (parsed.Year < 2020 || parsed.Year > 2099) {
		v.Error = "invalid year in document number"
		return v
	}

	maxSeq := int64(maxCanonicalSequence)
	if v.IsLegacy {
		maxSeq = maxLegacySequence
	}
	if parsed.Sequence < 1 || parsed.Sequence > maxSeq {
		v.Error = "invalid sequence number"
		return v
	}

	v.Valid = true
	return v
}

// IsCanonicalFormat reports whether a number uses the readable dash-separated
// format rather than a legacy compact one.
func IsCanonicalFormat(number string) bool {
	return strings.Contains(number, "-")
}
