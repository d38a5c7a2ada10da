package server

import (
	"context"
	"io"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/ValentinKolb/dVol/rpc/common"
)

// NewImportAdapter creates the adapter decoding a container pulled piece by
// piece from the caller.
func NewImportAdapter() IWorkerAdapter {
	return &importAdapter{}
}

type importAdapter struct{}

func (a *importAdapter) Handle(ctx context.Context, req *common.Message, s *Session) *common.Message {
	var src codec.ChunkSource = &pullSource{s: s}
	if req.ByteEnd > 0 {
		src = &sizedPullSource{pullSource: pullSource{s: s}, size: req.ByteEnd}
	}

	// relay failures only matter if the caller is gone, which the next pull notices
	relay := func(msg *common.Message) {
		if err := s.Send(msg); err != nil {
			Logger.Debugf("Failed to relay %s for request %d: %v", msg.MsgType, req.ID, err)
		}
	}

	cb := codec.Callbacks{
		OnProgress: func(p codec.Progress) {
			relay(common.NewProgressResponse(req.ID, p))
		},
		OnVolumeDecoded: func(count, total int) {
			relay(common.NewVolumeResponse(req.ID, count, total))
		},
		OnMilestone: func(m codec.Milestone) {
			relay(common.NewMilestoneResponse(req.ID, m))
		},
	}
	if req.HandOff {
		// one volume in flight: the next is not decoded before the caller took this one
		cb.OnVolume = func(v volume.Volume) error {
			if err := s.Send(common.NewVolumeDataResponse(req.ID, v)); err != nil {
				return err
			}
			_, err := s.Await(ctx, common.MsgTAck)
			return err
		}
	}

	ds, err := codec.Decode(ctx, src, cb)
	if s.Aborted() {
		return nil
	}
	if err != nil {
		return common.NewErrorResponse(req.ID, err)
	}
	return common.NewImportSuccessResponse(req.ID, ds)
}

// pullSource asks the caller for every piece
type pullSource struct {
	s   *Session
	eof bool
}

func (p *pullSource) Next(ctx context.Context) ([]byte, error) {
	if p.eof {
		return nil, io.EOF
	}
	if err := p.s.Send(common.NewPullRequest(p.s.ID())); err != nil {
		return nil, err
	}
	msg, err := p.s.Await(ctx, common.MsgTFeed)
	if err != nil {
		return nil, err
	}
	if msg.EOF {
		p.eof = true
		if len(msg.Buffer) == 0 {
			return nil, io.EOF
		}
	}
	return msg.Buffer, nil
}

// sizedPullSource is a pullSource whose total size the caller announced
type sizedPullSource struct {
	pullSource
	size int64
}

func (p *sizedPullSource) Size() int64 {
	return p.size
}
