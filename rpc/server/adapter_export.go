package server

import (
	"context"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/ValentinKolb/dVol/rpc/common"
)

// NewExportAdapter creates the adapter encoding volumes into a container.
func NewExportAdapter() IWorkerAdapter {
	return &exportAdapter{}
}

type exportAdapter struct{}

func (a *exportAdapter) Handle(ctx context.Context, req *common.Message, s *Session) *common.Message {
	opts := req.Options.EncodeOptions()

	// Whole container in one buffer
	if !req.Options.Stream {
		res, err := codec.Encode(ctx, req.Volumes, opts, nil)
		if err != nil {
			return common.NewErrorResponse(req.ID, err)
		}
		return common.NewExportSuccessResponse(req.ID, res.Manifest, res.Data)
	}

	// Chunk by chunk, waiting for an ack after each one
	res, err := codec.Encode(ctx, req.Volumes, opts, func(chunk *volume.Chunk) error {
		if err := s.Send(common.NewChunkResponse(req.ID, chunk)); err != nil {
			return err
		}
		_, err := s.Await(ctx, common.MsgTAck)
		return err
	})
	if s.Aborted() {
		return nil
	}
	if err != nil {
		return common.NewErrorResponse(req.ID, err)
	}
	return common.NewDoneResponse(req.ID, res.Manifest)
}
