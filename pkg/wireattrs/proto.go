package wireattrs

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Protobuf returns the application/x-protobuf Snapshot codec. A Snapshot
// has no generated proto.Message of its own, so it's bridged through
// structpb.Struct, the same way a caller would hand an arbitrary JSON-like
// value to a protobuf field typed google.protobuf.Struct.
func Protobuf() Codec {
	return protoCodec{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (p protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Marshal(s Snapshot) ([]byte, error) {
	st, err := structpb.NewStruct(s)
	if err != nil {
		return nil, err
	}
	return p.mo.Marshal(st)
}

func (p protoCodec) Unmarshal(data []byte, s *Snapshot) error {
	st := &structpb.Struct{}
	if err := p.uo.Unmarshal(data, st); err != nil {
		return err
	}
	*s = st.AsMap()
	return nil
}
