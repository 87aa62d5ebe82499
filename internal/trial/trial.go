// Package trial defines the trial record shared by the trial table, the
// response tracker and the results writers.
//
// A record carries the generic bookkeeping every study needs (index, response,
// response time, validity) plus a study-specific Payload that knows how to
// parse a row of the trial list and how to render its results columns.
package trial

// InvalidResponse marks a trial whose response was invalidated by a second
// press before the trial ended.
const InvalidResponse = -1

// Payload is the study-specific part of a trial.
type Payload interface {
	// ListColumns is the exact header expected in the trial list.
	ListColumns() []string

	// ResultColumns are the study-specific columns written to the results file.
	ResultColumns() []string

	// Parse decodes one row of the trial list, positionally matching ListColumns.
	Parse(fields []string) error

	// ResultValues returns one value per entry of ResultColumns.
	ResultValues() []any
}

// ResponseTimeReporter is implemented by payloads that report the response
// time in their own unit or reference frame.
type ResponseTimeReporter interface {
	ReportResponseTime(o Outcome) float64
}

// Factory creates an empty payload. It replaces instantiating trial types by name.
type Factory[P Payload] func() P

// Outcome is the response data recorded while a trial runs.
type Outcome struct {
	// Response is 0 when no button was pressed, the 1-based button index after
	// a single press, or InvalidResponse after a double press.
	Response int `json:"response"`

	// ResponseTime is the press time in seconds since the experiment started.
	ResponseTime float64 `json:"response_time"`

	// Valid is cleared when the trial has no usable response.
	Valid bool `json:"valid"`
}

// Reset prepares the outcome for a new attempt of the same trial.
func (o *Outcome) Reset() {
	o.Response = 0
	o.ResponseTime = 0
	o.Valid = true
}

// Responded reports whether a single valid press was recorded.
func (o *Outcome) Responded() bool {
	return o.Response > 0
}

// Record is one row of the trial list together with its outcome.
type Record[P Payload] struct {
	// Index is the 1-based position in the trial list, assigned at load time.
	Index int

	Outcome

	Payload P
}

// NewRecord wraps payload in a record with a fresh outcome.
func NewRecord[P Payload](index int, payload P) *Record[P] {
	return &Record[P]{
		Index:   index,
		Outcome: Outcome{Valid: true},
		Payload: payload,
	}
}

var (
	headerPrefix = []string{"Index"}
	headerSuffix = []string{"Response", "ResponseTime", "Valid"}
)

// ResultsHeader returns the full header row of the results file.
// A nil record has no header.
func (r *Record[P]) ResultsHeader() []string {
	if r == nil {
		return nil
	}
	cols := r.Payload.ResultColumns()
	header := make([]string, 0, len(headerPrefix)+len(cols)+len(headerSuffix))
	header = append(header, headerPrefix...)
	header = append(header, cols...)
	header = append(header, headerSuffix...)
	return header
}

// ResultsLine returns the values matching ResultsHeader.
func (r *Record[P]) ResultsLine() []any {
	if r == nil {
		return nil
	}
	values := r.Payload.ResultValues()
	line := make([]any, 0, len(values)+4)
	line = append(line, r.Index)
	line = append(line, values...)
	line = append(line, r.Response, r.reportedResponseTime(), r.Valid)
	return line
}

// TrialIndex returns the record index.
func (r *Record[P]) TrialIndex() int {
	if r == nil {
		return 0
	}
	return r.Index
}

func (r *Record[P]) reportedResponseTime() float64 {
	if rep, ok := any(r.Payload).(ResponseTimeReporter); ok {
		return rep.ReportResponseTime(r.Outcome)
	}
	return r.ResponseTime
}
