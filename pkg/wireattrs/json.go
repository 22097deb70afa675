package wireattrs

import "encoding/json"

type jsonCodec struct{}

// JSON returns the application/json Snapshot codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(s Snapshot) ([]byte, error) { return json.Marshal(s) }

func (jsonCodec) Unmarshal(data []byte, s *Snapshot) error {
	return json.Unmarshal(data, s)
}
