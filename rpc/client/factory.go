package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/serializer"
	"github.com/ValentinKolb/dVol/rpc/server"
	"github.com/ValentinKolb/dVol/rpc/transport"
	"github.com/ValentinKolb/dVol/rpc/transport/inproc"
	"github.com/ValentinKolb/dVol/rpc/transport/stream"
)

var (
	// ErrWorkerUnavailable is returned by a WorkerFactory when background
	// execution is not possible. The coordinator then runs calls inline.
	ErrWorkerUnavailable = errors.New("background worker unavailable")

	// ErrDisposed is returned by every call made after Dispose.
	ErrDisposed = errors.New("coordinator disposed")
)

// WorkerKind identifies one of the coordinator's background contexts.
type WorkerKind uint8

const (
	WorkerDataset WorkerKind = iota // export and import
	WorkerShard                     // shard range extraction

	workerKinds = 2
)

// String returns the string representation of a WorkerKind.
func (k WorkerKind) String() string {
	switch k {
	case WorkerDataset:
		return "dataset"
	case WorkerShard:
		return "shard"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// WorkerFactory starts a worker of the given kind and returns the
// coordinator's end of its transport.
type WorkerFactory func(kind WorkerKind) (transport.IWorkerTransport, error)

// InProcFactory returns a factory running every worker as a goroutine.
func InProcFactory() WorkerFactory {
	return func(kind WorkerKind) (transport.IWorkerTransport, error) {
		caller, worker := inproc.NewPipe()
		go func() {
			if err := server.NewWorker(worker).Serve(context.Background()); err != nil {
				Logger.Errorf("In-process %s worker failed: %v", kind, err)
			}
		}()
		Logger.Debugf("Started in-process %s worker", kind)
		return caller, nil
	}
}

// ProcessFactory returns a factory starting every worker as a child process
// running args (usually `dvol worker --serializer <name>`). A worker that
// cannot be started is reported as ErrWorkerUnavailable.
func ProcessFactory(args []string, serializerName string) (WorkerFactory, error) {
	ser, err := serializer.New(serializerName)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("process workers need a worker command")
	}
	return func(kind WorkerKind) (transport.IWorkerTransport, error) {
		t, err := stream.Spawn(args, ser)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
		}
		Logger.Debugf("Started %s worker process", kind)
		return t, nil
	}, nil
}

// NewFactory returns the factory selected by the worker mode of config.
// WorkerModeNone yields a nil factory, which makes every call run inline.
func NewFactory(config *common.CoordinatorConfig) (WorkerFactory, error) {
	switch config.WorkerMode {
	case common.WorkerModeInProc:
		return InProcFactory(), nil
	case common.WorkerModeProcess:
		return ProcessFactory(config.WorkerCmd, config.Serializer)
	case common.WorkerModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid worker mode: %s", config.WorkerMode)
	}
}
