package volume

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ValentinKolb/dVol/lib/fault"
)

// RemoteVolume is the response shape of the upstream volume retrieval
// service: dimensions plus base64 encoded little-endian float32 samples.
type RemoteVolume struct {
	Width    uint32 `json:"width"`
	Height   uint32 `json:"height"`
	Depth    uint32 `json:"depth"`
	Channels uint32 `json:"channels"`
	DataType string `json:"dataType"`
	Data     string `json:"data"`
}

// ParseRemote decodes a retrieval service response into a Volume with the
// given series index. The result is validated before it is returned.
func ParseRemote(r io.Reader, index uint32) (Volume, error) {
	var rv RemoteVolume
	if err := json.NewDecoder(r).Decode(&rv); err != nil {
		return Volume{}, fault.NewStream(err, "decoding remote volume")
	}
	return rv.ToVolume(index)
}

// ToVolume converts the response into a Volume.
func (rv RemoteVolume) ToVolume(index uint32) (Volume, error) {
	dt, err := ParseDataType(rv.DataType)
	if err != nil {
		return Volume{}, fault.NewValidation("dataType", "%v", err)
	}
	data, err := base64.StdEncoding.DecodeString(rv.Data)
	if err != nil {
		return Volume{}, fault.NewValidation("data", "invalid base64: %v", err)
	}
	v := Volume{
		Descriptor: Descriptor{
			Width:    rv.Width,
			Height:   rv.Height,
			Depth:    rv.Depth,
			Channels: rv.Channels,
			DataType: dt,
			Index:    index,
		},
		Data: data,
	}
	if err := v.Validate(fmt.Sprintf("remote[%d]", index)); err != nil {
		return Volume{}, err
	}
	return v, nil
}
