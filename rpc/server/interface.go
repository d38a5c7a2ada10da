package server

import (
	"context"

	"github.com/ValentinKolb/dVol/rpc/common"
)

// IWorkerAdapter is the interface for all worker adapters.
// An adapter handles one kind of request from start to finish.
type IWorkerAdapter interface {
	// Handle processes req and returns the final response (success, done,
	// decoded or error). Intermediate messages (chunks, pulls, progress) are
	// exchanged through the session. A nil response means the caller aborted
	// the request and nothing is sent back.
	Handle(ctx context.Context, req *common.Message, s *Session) (resp *common.Message)
}
