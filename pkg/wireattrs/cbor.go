package wireattrs

import cbor "github.com/fxamacker/cbor/v2"

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// MustCBOR builds the application/cbor Snapshot codec, panicking if the
// canonical encoding options this module always uses somehow fail to
// construct (they don't, for any released cbor/v2 version, but the
// constructor is fallible so the panic-wrapping lives at the one call site
// that needs an unconditional Codec).
func MustCBOR() Codec {
	c, err := CBOR()
	if err != nil {
		panic(err)
	}
	return c
}

// CBOR returns a deterministic (RFC 8949 core profile) Snapshot codec.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Marshal(s Snapshot) ([]byte, error) { return c.enc.Marshal(s) }

func (c cborCodec) Unmarshal(data []byte, s *Snapshot) error { return c.dec.Unmarshal(data, s) }
