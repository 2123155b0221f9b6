package psi

import "testing"

func TestParseDescriptorsThenWriteDescriptorsRoundTrips(t *testing.T) {
	ds := []Descriptor{
		{Tag: DescTagCA, Data: []byte{0x00, 0x01, 0xE0, 0x20}},
		{Tag: DescTagStreamIdentifier, Data: []byte{0x01}},
	}
	raw := WriteDescriptors(ds)
	got := ParseDescriptors(raw)
	if len(got) != len(ds) {
		t.Fatalf("got %d descriptors, want %d", len(got), len(ds))
	}
	for i := range ds {
		if got[i].Tag != ds[i].Tag || string(got[i].Data) != string(ds[i].Data) {
			t.Errorf("descriptor %d = %+v, want %+v", i, got[i], ds[i])
		}
	}
	if DescriptorsLength(ds) != len(raw) {
		t.Errorf("DescriptorsLength = %d, want %d", DescriptorsLength(ds), len(raw))
	}
}

func TestStripCARemovesOnlyCADescriptors(t *testing.T) {
	ds := []Descriptor{
		{Tag: DescTagCA, Data: []byte{0x01}},
		{Tag: DescTagStreamIdentifier, Data: []byte{0x02}},
		{Tag: DescTagCA, Data: []byte{0x03}},
	}
	stripped := StripCA(ds)
	if len(stripped) != 1 || stripped[0].Tag != DescTagStreamIdentifier {
		t.Fatalf("StripCA left %+v, want only the stream-identifier descriptor", stripped)
	}
	if HasCA(stripped) {
		t.Errorf("HasCA reported true after stripping")
	}
}

func TestHasCADetectsPresence(t *testing.T) {
	if HasCA(nil) {
		t.Errorf("HasCA(nil) = true, want false")
	}
	if !HasCA([]Descriptor{{Tag: DescTagCA}}) {
		t.Errorf("HasCA should report true when a CA descriptor is present")
	}
}

func TestParseDescriptorsStopsOnTruncatedEntry(t *testing.T) {
	// A declared length that overruns the remaining bytes must not panic
	// or fabricate a descriptor.
	raw := []byte{DescTagCA, 0x05, 0x01, 0x02}
	got := ParseDescriptors(raw)
	if len(got) != 0 {
		t.Errorf("ParseDescriptors returned %d descriptors from truncated input, want 0", len(got))
	}
}
