package emitters

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	exporters "github.com/juvenn/timeline-exporters"
)

// NewIOReporter builds a reporter writing json lines to w. The caller drives
// cycles, either directly or through a Scheduler.
func NewIOReporter(w io.Writer, reg exporters.Registry, opts ...exporters.Option) (*exporters.Reporter, error) {
	opts = append(opts, exporters.WithEmitters(NewIOEmitter(w)))
	return exporters.NewReporter(reg, opts...)
}

// NewFileEmitter opens path for appending, creating it when missing.
func NewFileEmitter(path string) (*jsonLinesEmitter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return NewIOEmitter(f), nil
}

// NewIOEmitter writes to w, closing it on Close if it is an io.Closer.
func NewIOEmitter(w io.Writer) *jsonLinesEmitter {
	return &jsonLinesEmitter{writer: w}
}

// NewStdoutEmitter writes to stdout and leaves it open on Close.
func NewStdoutEmitter() *jsonLinesEmitter {
	return NewIOEmitter(struct{ io.Writer }{os.Stdout})
}

// One sample per line. A batch is encoded up front and written at once, so a
// sample that fails to encode leaves no partial batch behind.
type jsonLinesEmitter struct {
	writer io.Writer
}

func (this *jsonLinesEmitter) Emit(batch exporters.Batch) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, sample := range batch {
		if err := enc.Encode(sample); err != nil {
			return err
		}
	}
	_, err := this.writer.Write(buf.Bytes())
	return err
}

func (this *jsonLinesEmitter) Close() error {
	if c, ok := this.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
