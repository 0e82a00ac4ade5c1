package vectorstore

import (
	"time"

	"github.com/WessleyAI/ragqa/engine/domain"
)

// Observer receives one callback per finished operation. pkg/metrics
// provides the Prometheus implementation.
type Observer interface {
	ObserveDial(err error, elapsed time.Duration)
	ObserveLookup(kind domain.LookupKind, elapsed time.Duration)
	ObserveStore(records int, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveDial(error, time.Duration) {}
func (nopObserver) ObserveLookup(domain.LookupKind, time.Duration) {}
func (nopObserver) ObserveStore(int, error, time.Duration) {}
