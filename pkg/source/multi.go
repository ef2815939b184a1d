package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Multi runs several collectors over the same follows and merges their
// events. Each collector picks the follows it understands.
type Multi struct {
	collectors []Collector
}

// NewMulti creates a collector that fans out to collectors.
func NewMulti(collectors ...Collector) *Multi {
	return &Multi{collectors: collectors}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.collectors))
	for i, c := range m.collectors {
		names[i] = c.Name()
	}
	return strings.Join(names, "+")
}

// Collect returns the events of every collector that succeeded together
// with the joined errors of those that did not.
func (m *Multi) Collect(ctx context.Context, sources []TrackedSource) ([]Event, error) {
	var (
		all  []Event
		errs []error
	)
	for _, c := range m.collectors {
		events, err := c.Collect(ctx, sources)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		all = append(all, events...)
	}
	return all, errors.Join(errs...)
}
