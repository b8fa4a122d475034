// Package docnum provides document number configuration, formatting and
// parsing for B2B business records. Numbers are legally meaningful: once
// issued they are unique, gap-free per period and never reformatted.
//
// Canonical format: PREFIX-YYYY-NNNNNN for period-resetting types
// (e.g. FAC-2026-000001) and PREFIX-NNNNNN for continuous types
// (e.g. CLI-000001).
package docnum

import (
	"fmt"
	"regexp"

	"numera/internal/core/apperror"
)

// DocType identifies a numbered business record category.
type DocType string

const (
	TypeInvoice         DocType = "FACTURE"
	TypeDepositInvoice  DocType = "FACTURE_ACOMPTE"
	TypeQuote           DocType = "DEVIS"
	TypePurchaseOrder   DocType = "BC"
	TypeDeliveryNote    DocType = "BL"
	TypeReceptionReport DocType = "RFT"
	TypeCreditNote      DocType = "AVOIR"
	TypeClient          DocType = "CLIENT"
	TypeLead            DocType = "LEAD"
	TypeProject         DocType = "PROJECT"
	TypePayment         DocType = "PAYMENT"

	// E-commerce counters share the store but use a shorter sequence.
	TypeOrder     DocType = "ORDER"
	TypeEcomQuote DocType = "ECOM_QUOTE"
)

// ResetPolicy defines how often a type's counter restarts at 1.
type ResetPolicy string

const (
	ResetDaily      ResetPolicy = "DAILY"
	ResetMonthly    ResetPolicy = "MONTHLY"
	ResetYearly     ResetPolicy = "YEARLY"
	ResetContinuous ResetPolicy = "CONTINUOUS"
)

// TypeConfig holds the numbering configuration for one document type.
type TypeConfig struct {
	// Prefix added before the year and sequence segments (e.g. "FAC")
	Prefix string

	// Reset controls the period key of the underlying counter
	Reset ResetPolicy

	// PadWidth is the zero-padded sequence width
	PadWidth int

	// pattern validates formatted output; derived from the fields above
	pattern *regexp.Regexp
}

// Pattern returns the regular expression a formatted number must match.
func (c TypeConfig) Pattern() *regexp.Regexp { return c.pattern }

// typeConfigs maps every known document type to its numbering configuration.
// All B2B documents use yearly reset with a 6-digit sequence; client codes
// are continuous and never reset. E-commerce counters keep their historical
// 4-digit width.
var typeConfigs = map[DocType]TypeConfig{
	TypeInvoice:         {Prefix: "FAC", Reset: ResetYearly, PadWidth: 6},
	TypeDepositInvoice:  {Prefix: "FAAC", Reset: ResetYearly, PadWidth: 6},
	TypeQuote:           {Prefix: "DEV", Reset: ResetYearly, PadWidth: 6},
	TypePurchaseOrder:   {Prefix: "BC", Reset: ResetYearly, PadWidth: 6},
	TypeDeliveryNote:    {Prefix: "BL", Reset: ResetYearly, PadWidth: 6},
	TypeReceptionReport: {Prefix: "PV", Reset: ResetYearly, PadWidth: 6},
	TypeCreditNote:      {Prefix: "AV", Reset: ResetYearly, PadWidth: 6},
	TypeClient:          {Prefix: "CLI", Reset: ResetContinuous, PadWidth: 6},
	TypeLead:            {Prefix: "L", Reset: ResetYearly, PadWidth: 6},
	TypeProject:         {Prefix: "PRJ", Reset: ResetYearly, PadWidth: 6},
	TypePayment:         {Prefix: "PAY", Reset: ResetYearly, PadWidth: 6},
	TypeOrder:           {Prefix: "ORD", Reset: ResetYearly, PadWidth: 4},
	TypeEcomQuote:       {Prefix: "QT", Reset: ResetYearly, PadWidth: 4},
}

// configuredTypes is the stable iteration order for health checks and parsing.
var configuredTypes = []DocType{
	TypeInvoice, TypeDepositInvoice, TypeQuote, TypePurchaseOrder,
	TypeDeliveryNote, TypeReceptionReport, TypeCreditNote, TypeClient,
	TypeLead, TypeProject, TypePayment, TypeOrder, TypeEcomQuote,
}

// prefixIndex resolves a canonical prefix back to its document type.
var prefixIndex map[string]DocType

func init() {
	prefixIndex = make(map[string]DocType, len(typeConfigs))
	for docType, cfg := range typeConfigs {
		if cfg.Reset == ResetContinuous {
			cfg.pattern = regexp.MustCompile(fmt.Sprintf(`^%s-\d{%d}$`, cfg.Prefix, cfg.PadWidth))
		} else {
			cfg.pattern = regexp.MustCompile(fmt.Sprintf(`^%s-\d{4}-\d{%d}$`, cfg.Prefix, cfg.PadWidth))
		}
		typeConfigs[docType] = cfg
		prefixIndex[cfg.Prefix] = docType
	}
}

// ConfigFor returns the numbering configuration for a document type.
func ConfigFor(docType DocType) (TypeConfig, error) {
	cfg, ok := typeConfigs[docType]
	if !ok {
		return TypeConfig{}, apperror.NewUnknownType(string(docType))
	}
	return cfg, nil
}

// Types returns all configured document types in stable order.
func Types() []DocType {
	out := make([]DocType, len(configuredTypes))
	copy(out, configuredTypes)
	return out
}

// TypeForPrefix resolves a canonical prefix to its document type.
func TypeForPrefix(prefix string) (DocType, bool) {
	docType, ok := prefixIndex[prefix]
	return docType, ok
}

// MapLegacyType converts historical document type names used by the CRM
// document table to numbering types. Unknown names pass through unchanged.
func MapLegacyType(oldType string) DocType {
	switch oldType {
	case "DEVIS":
		return TypeQuote
	case "BON_COMMANDE":
		return TypePurchaseOrder
	case "BON_LIVRAISON":
		return TypeDeliveryNote
	case "PV_RECEPTION":
		return TypeReceptionReport
	case "FACTURE":
		return TypeInvoice
	case "FACTURE_ACOMPTE":
		return TypeDepositInvoice
	case "AVOIR":
		return TypeCreditNote
	default:
		return DocType(oldType)
	}
}
