package metrics

// Noop discards everything. It keeps hot paths free of nil checks.
type Noop struct{}

func (Noop) RecordAdmission(string)              {}
func (Noop) RecordPolicyCache(bool)              {}
func (Noop) RecordPolicyFlush(string)            {}
func (Noop) RecordLookup(string, float64, error) {}
func (Noop) SetBuckets(int)                      {}
func (Noop) RecordError(string)                  {}
