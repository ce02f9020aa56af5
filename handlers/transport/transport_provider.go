package transport

import (
	"context"
)

// JobHandler runs one call on a connected transport service. It blocks until
// the call is over.
type JobHandler func(svc TransportService, ctx context.Context) error

type ITransportProvider interface {
	Start() error
	Stop() error
	RegisterJobHandler(handler JobHandler) error
}
