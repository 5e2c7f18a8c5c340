package biu

import "fmt"

// InvariantError marks a condition spec §7 classifies as fatal: a
// genuine implementer bug in this model, not a recoverable runtime
// error. The BIU panics with one rather than returning an error, mirroring
// the source's panic!() — there is nothing a caller could usefully do
// with, say, a wedged fetch timeout except stop and inspect the trace.
type InvariantError struct {
	Message string
	Trace   []Event
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("biu: invariant violation: %s", e.Message)
}

func newInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}

// Recover turns a panicking *InvariantError into *out, attaching the
// trace tail for diagnosis. Must be deferred directly — defer biu.Recover(&err, u.Trace)
// — since recover() only stops a panic when called by the function defer
// invoked directly. trace is a func() []Event rather than a []Event so it
// is evaluated here, after the panic unwinds, instead of at the defer
// statement (Go evaluates deferred call arguments immediately, which would
// otherwise capture an empty trace from before anything ran). Used at one
// top-level recover point per binary (cmd/biu8088, cmd/biu8088trace),
// matching the teacher's one-place-calls-os.Exit discipline in
// cmd/m2sim/main.go.
func Recover(out *error, trace func() []Event) {
	if r := recover(); r != nil {
		ie, ok := r.(*InvariantError)
		if !ok {
			panic(r)
		}
		ie.Trace = trace()
		*out = ie
	}
}
