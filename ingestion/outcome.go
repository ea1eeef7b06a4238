package ingestion

// Outcome is the terminal result of processing one document
type Outcome struct {
	Status Status
	Reason string // set only when Status is failed
}

// Completed is the outcome of a successfully processed document
func Completed() Outcome {
	return Outcome{Status: StatusCompleted}
}

// Failed is the outcome of a document whose processing failed for reason
func Failed(reason string) Outcome {
	if reason == "" {
		reason = "processing failed"
	}
	return Outcome{Status: StatusFailed, Reason: reason}
}

// errorMessage returns the value stored in the log's error_message column
func (o Outcome) errorMessage() *string {
	if o.Status != StatusFailed {
		return nil
	}
	r := o.Reason
	return &r
}

// outcomeFor maps a per-document ProcessingError to a failed outcome
func outcomeFor(perr *ProcessingError) Outcome {
	if perr == nil {
		return Completed()
	}
	if perr.Err != nil {
		return Failed(perr.Reason + ": " + perr.Err.Error())
	}
	return Failed(perr.Reason)
}
