package pipeline

import "errors"

// FailureSink records an escalated error in the document. It never attempts
// recovery; the engine resolves the execution as Fail afterwards.
type FailureSink struct{}

// Capture writes err's kind, message and attempt count into doc's error
// field. Errors that did not come through the Invoker are recorded as
// KindTaskFailed with zero attempts.
func (FailureSink) Capture(doc *Document, err error) (*Document, error) {
	rec := FailureRecord{
		Source:  KindTaskFailed,
		Message: "unknown error",
	}
	var esc *EscalationError
	switch {
	case errors.As(err, &esc):
		rec.Source = esc.Kind
		rec.Task = esc.Task
		rec.Attempts = esc.Attempts
		if esc.Cause != nil {
			rec.Message = failureMessage(esc.Cause)
		}
	case err != nil:
		rec.Source = KindOf(err)
		rec.Message = failureMessage(err)
	}
	if werr := doc.setFailure(rec); werr != nil {
		return doc, werr
	}
	return doc, nil
}

func failureMessage(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		if te.Cause != nil {
			return te.Message + ": " + te.Cause.Error()
		}
		return te.Message
	}
	return err.Error()
}
