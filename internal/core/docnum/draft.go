package docnum

import (
	"strconv"
	"strings"
	"time"
)

// draftPrefix marks synthetic placeholder numbers assigned before issuance.
// A draft number is never reused as an official number.
const draftPrefix = "DRAFT-"

// DraftNumber generates a placeholder number for an unissued document.
// Format: DRAFT-{TYPE}-{base36 timestamp}. The type segment keeps the
// caller's document type name as-is, legacy or canonical.
func DraftNumber(docType string) string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return draftPrefix + docType + "-" + ts
}

// IsDraftNumber reports whether a number is a draft placeholder.
func IsDraftNumber(number string) bool {
	return strings.HasPrefix(number, draftPrefix)
}
