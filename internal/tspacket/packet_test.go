package tspacket

import "testing"

func TestParseRejectsWrongSize(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatalf("Parse accepted a non-188-byte buffer")
	}
}

func TestParseRejectsBadSyncByte(t *testing.T) {
	buf := make([]byte, Size)
	buf[0] = 0x48
	if _, err := Parse(buf); err == nil {
		t.Fatalf("Parse accepted a bad sync byte")
	}
}

func TestWriteOneThenParseRoundTrips(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	buf := WriteOne(0x0100, 5, true, payload)
	if len(buf) != Size {
		t.Fatalf("WriteOne produced %d bytes, want %d", len(buf), Size)
	}

	pkt, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pkt.Header.PID != 0x0100 {
		t.Errorf("PID = 0x%04X, want 0x0100", pkt.Header.PID)
	}
	if !pkt.Header.PayloadUnitStartIndicator {
		t.Errorf("PayloadUnitStartIndicator = false, want true")
	}
	if pkt.Header.ContinuityCounter != 5 {
		t.Errorf("ContinuityCounter = %d, want 5", pkt.Header.ContinuityCounter)
	}
	if pkt.Payload == nil || len(pkt.Payload) < len(payload) {
		t.Fatalf("Payload too short: %v", pkt.Payload)
	}
	for i, b := range payload {
		if pkt.Payload[i] != b {
			t.Errorf("Payload[%d] = 0x%02X, want 0x%02X", i, pkt.Payload[i], b)
		}
	}
}

func TestExpectedCCWrapsAtFour(t *testing.T) {
	if got := ExpectedCC(0x0F); got != 0x00 {
		t.Errorf("ExpectedCC(0x0F) = 0x%X, want 0x0", got)
	}
	if got := ExpectedCC(3); got != 4 {
		t.Errorf("ExpectedCC(3) = %d, want 4", got)
	}
}

func TestPacketizeSplitsAcrossPackets(t *testing.T) {
	data := make([]byte, 400) // needs at least 3 packets of payload
	for i := range data {
		data[i] = byte(i)
	}
	packets, nextCC := Packetize(0x0020, 0, data)
	if len(packets) < 3 {
		t.Fatalf("Packetize produced %d packets, want at least 3", len(packets))
	}
	for i, p := range packets {
		if len(p) != Size {
			t.Fatalf("packet %d: %d bytes, want %d", i, len(p), Size)
		}
	}
	if nextCC != ExpectedCC(uint8(len(packets)-1)) {
		t.Errorf("nextCC = %d, want %d", nextCC, ExpectedCC(uint8(len(packets)-1)))
	}

	first, err := Parse(packets[0])
	if err != nil {
		t.Fatalf("Parse first packet: %v", err)
	}
	if !first.Header.PayloadUnitStartIndicator {
		t.Errorf("first packet should set PUSI")
	}
	second, err := Parse(packets[1])
	if err != nil {
		t.Fatalf("Parse second packet: %v", err)
	}
	if second.Header.PayloadUnitStartIndicator {
		t.Errorf("continuation packet should not set PUSI")
	}
}
