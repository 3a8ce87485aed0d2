package einvoice

import "fmt"

// ValidationError marks an order that cannot legally enter the pipeline
// (missing refund reason, missing identifier, ineligible supplier).
type ValidationError struct {
	OrderID string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order %s: %s", e.OrderID, e.Reason)
}

// XMLGenerationError wraps a failure while producing or transforming the
// invoice document, before any network interaction.
type XMLGenerationError struct {
	OrderID string
	Step    string
	Err     error
}

func (e *XMLGenerationError) Error() string {
	return fmt.Sprintf("order %s: %s: %v", e.OrderID, e.Step, e.Err)
}

func (e *XMLGenerationError) Unwrap() error { return e.Err }
