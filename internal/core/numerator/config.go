// Package numerator provides domain contracts for document auto-numbering.
package numerator

// ResetPeriod controls when a sequence starts again from 1.
type ResetPeriod string

const (
	ResetDaily   ResetPeriod = "day"
	ResetMonthly ResetPeriod = "month"
	ResetYearly  ResetPeriod = "year"
	ResetNever   ResetPeriod = "never"
)

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "INV")
	Prefix string

	// Scope isolates sequences, typically a company id.
	Scope string

	// DateLayout is a Go time layout inserted after the prefix. Empty omits the date.
	DateLayout string

	// PadWidth is the minimum number width
	PadWidth int

	ResetPeriod ResetPeriod
}

// InvoiceConfig numbers draft invoices per company per day: INV-YYMMDD-NNN.
func InvoiceConfig(companyID string) Config {
	return Config{
		Prefix:      "INV",
		Scope:       companyID,
		DateLayout:  "060102",
		PadWidth:    3,
		ResetPeriod: ResetDaily,
	}
}
