package demux

import "github.com/zsiec/dvbrelay/internal/psi"

// Elementary stream types that are always carried when an output
// auto-selects (§4.9): MPEG-1/2 video and audio, AAC audio, H.264 video.
func isAlwaysSelectedStreamType(streamType uint8) bool {
	switch streamType {
	case 0x01, 0x02, 0x03, 0x04, 0x0F, 0x1B:
		return true
	default:
		return false
	}
}

// descriptorTagSelectsPrivateData reports whether tag on a stream_type
// 0x06 ("private PES data") ES marks it as teletext, DVB subtitles, or
// A/52 (AC-3) audio — the only private-data ES kinds an auto-selecting
// output picks up (§4.9).
func descriptorTagSelectsPrivateData(tag uint8) bool {
	switch tag {
	case psi.DescTagTeletext, psi.DescTagSubtitling, psi.DescTagAC3:
		return true
	default:
		return false
	}
}

// wouldBeSelected reports whether an auto-selecting output (empty
// PIDList) would pick up this ES, per §4.9.
func wouldBeSelected(s psi.PMTStream) bool {
	if isAlwaysSelectedStreamType(s.StreamType) {
		return true
	}
	if s.StreamType != 0x06 {
		return false
	}
	for _, d := range s.Descriptors {
		if descriptorTagSelectsPrivateData(d.Tag) {
			return true
		}
	}
	return false
}

// carriesPES reports whether the ES type is itself elementary-stream
// (PES) data, as opposed to a private section stream. Used where the
// dispatcher needs to know the payload framing rather than selection
// eligibility (§4.9, §4.10). Every always-selected type qualifies, plus
// raw private PES data (0x06) regardless of its descriptor tags.
func carriesPES(streamType uint8) bool {
	if isAlwaysSelectedStreamType(streamType) {
		return true
	}
	return streamType == 0x06
}
