package exporters

// An emitter delivers a batch of samples to some destination, e.g. a timeline
// collector. A failed batch is reported as error and not retried.
type Emitter interface {
	Emit(batch Batch) error
	Close() error
}
