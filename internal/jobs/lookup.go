package jobs

// NotFoundDetails is the fixed message of the synthetic record returned for
// unknown job ids.
const NotFoundDetails = "File not found or processing not started"

// Lookup is the result of a status query.
type Lookup struct {
	Record
	// Found is false when no record exists for the id; Record is then the
	// synthetic not-found record.
	Found bool `json:"-"`
}

// Query serves point-in-time snapshots of job records.
type Query struct {
	store Store
}

// NewQuery creates a read-only status query over store.
func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// Lookup returns the latest record for jobID, or a not-found shaped record.
// It never fails.
func (q *Query) Lookup(jobID string) Lookup {
	if rec, ok := q.store.Get(jobID); ok {
		return Lookup{Record: rec, Found: true}
	}
	return Lookup{
		Record: Record{
			JobID:     jobID,
			Status:    StatusError,
			Progress:  100,
			Details:   NotFoundDetails,
			ErrorKind: ErrorKindNotFound,
		},
		Found: false,
	}
}

// All returns every known record, newest first.
func (q *Query) All() []Record {
	return q.store.List()
}
