package telemetry

import (
	"fmt"
)

// API is where components send diagnostics. Nothing reported through it ever
// reaches the primary output of a command, and tests swap in a Recorder to
// assert on what was reported.
type API interface {
	// ReportBroken reports a failure that needs fixing, id names the component
	// (e.g. "extractor.extract") and params carry the error and its context.
	ReportBroken(id string, params ...any)
	// ReportWarning reports data worth a look that does not stop the run, like
	// a cumulative total that went down.
	ReportWarning(id string, params ...any)
	// ReportDebug is dropped unless running verbosely.
	ReportDebug(msg string, params ...any)
	// ReportCount records a point-in-time count under id.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, producing ids such as
// "cumulative: engine.inconsistent".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
