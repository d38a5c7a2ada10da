package server

import (
	"context"

	"github.com/ValentinKolb/dVol/lib/shard"
	"github.com/ValentinKolb/dVol/rpc/common"
)

// NewShardAdapter creates the adapter extracting byte ranges from shards.
func NewShardAdapter() IWorkerAdapter {
	return &shardAdapter{}
}

type shardAdapter struct{}

func (a *shardAdapter) Handle(_ context.Context, req *common.Message, _ *Session) *common.Message {
	out, err := shard.Extract(req.Buffer, req.ByteStart, req.ByteEnd)
	if err != nil {
		return common.NewErrorResponse(req.ID, err)
	}
	return common.NewDecodedResponse(req.ID, out)
}
