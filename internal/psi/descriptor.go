package psi

// Descriptor is a single generic tag/length/data descriptor. Output
// generation (§4.8) only needs to inspect tags (CA descriptors, stream-type
// qualifying descriptors) and to copy descriptor bytes through verbatim —
// it never needs to re-encode an upstream descriptor's semantic fields, so
// descriptors are kept as opaque byte blobs rather than a parsed union,
// mirroring how dvblast's rewrite path operates directly on descriptor
// bytes. Tag catalogue grounded on asticode-go-astits' descriptor.go.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// Descriptor tags referenced by the spec.
const (
	DescTagCA               = 0x09
	DescTagNetworkName      = 0x40
	DescTagService          = 0x48
	DescTagShortEvent       = 0x4D
	DescTagStreamIdentifier = 0x52
	DescTagTeletext         = 0x56
	DescTagSubtitling       = 0x59
	DescTagAC3              = 0x6A
)

// ParseDescriptors walks a descriptor loop (no leading length field — the
// caller has already sliced the loop to its exact byte length).
func ParseDescriptors(data []byte) []Descriptor {
	var out []Descriptor
	for len(data) >= 2 {
		tag := data[0]
		length := int(data[1])
		if 2+length > len(data) {
			break
		}
		d := Descriptor{Tag: tag, Data: append([]byte(nil), data[2:2+length]...)}
		out = append(out, d)
		data = data[2+length:]
	}
	return out
}

// WriteDescriptors serializes a descriptor loop, without any leading
// length field (callers prepend their own 12-bit loop-length field, whose
// width and position varies by table).
func WriteDescriptors(ds []Descriptor) []byte {
	var out []byte
	for _, d := range ds {
		out = append(out, d.Tag, byte(len(d.Data)))
		out = append(out, d.Data...)
	}
	return out
}

// DescriptorsLength returns the serialized byte length of ds.
func DescriptorsLength(ds []Descriptor) int {
	n := 0
	for _, d := range ds {
		n += 2 + len(d.Data)
	}
	return n
}

// StripCA returns ds with every CA descriptor (tag 0x09) removed, used when
// building outbound PMTs for descrambling outputs (§4.8, §8).
func StripCA(ds []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(ds))
	for _, d := range ds {
		if d.Tag == DescTagCA {
			continue
		}
		out = append(out, d)
	}
	return out
}

// HasCA reports whether ds contains a CA descriptor.
func HasCA(ds []Descriptor) bool {
	for _, d := range ds {
		if d.Tag == DescTagCA {
			return true
		}
	}
	return false
}

// BuildNetworkNameDescriptor builds a network_name descriptor (0x40)
// carrying name as raw single-byte characters, used to synthesize the
// minimal outbound NIT (§4.7).
func BuildNetworkNameDescriptor(name string) Descriptor {
	return Descriptor{Tag: DescTagNetworkName, Data: []byte(name)}
}
