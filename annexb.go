package hwenc

import (
	"encoding/binary"
	"errors"
)

// H.264 NAL unit types
const (
	nalTypeSlice = 1
	nalTypeIDR   = 5
	nalTypeSEI   = 6
	nalTypeSPS   = 7
	nalTypePPS   = 8
	nalTypeAUD   = 9
)

// H.265 NAL unit types
const (
	hevcNalIDRWRADL = 19
	hevcNalIDRNLP   = 20
	hevcNalCRA      = 21
)

var errNoParameterSets = errors.New("no SPS/PPS in access unit")

// splitAnnexB splits an Annex B byte stream into NAL units.
// Annex B uses start codes: 0x00000001 or 0x000001
func splitAnnexB(data []byte) [][]byte {
	var nalUnits [][]byte
	start := -1

	for i := 0; i < len(data); i++ {
		var sc int
		switch {
		case i+3 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1:
			sc = 4
		case i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 1:
			sc = 3
		default:
			continue
		}
		if start >= 0 && i > start {
			nalUnits = append(nalUnits, data[start:i])
		}
		start = i + sc
		i += sc - 1
	}

	// Handle last NAL unit
	if start >= 0 && start < len(data) {
		nalUnits = append(nalUnits, data[start:])
	}
	return nalUnits
}

func h264NalType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

func hevcNalType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return (nalu[0] >> 1) & 0x3F
}

// isKeyframeAU reports whether an access unit starts a random access point.
func isKeyframeAU(codec CodecID, nalus [][]byte) bool {
	for _, nalu := range nalus {
		switch codec {
		case CodecHEVC:
			switch hevcNalType(nalu) {
			case hevcNalIDRWRADL, hevcNalIDRNLP, hevcNalCRA:
				return true
			}
		default:
			if h264NalType(nalu) == nalTypeIDR {
				return true
			}
		}
	}
	return false
}

// h264ParameterSets returns the last SPS and PPS in nalus.
func h264ParameterSets(nalus [][]byte) (sps, pps []byte) {
	for _, nalu := range nalus {
		switch h264NalType(nalu) {
		case nalTypeSPS:
			sps = nalu
		case nalTypePPS:
			pps = nalu
		}
	}
	return sps, pps
}

// avcDecoderConfig builds an AVCDecoderConfigurationRecord (ISO 14496-15).
func avcDecoderConfig(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 || len(pps) == 0 {
		return nil, errNoParameterSets
	}
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out,
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // lengthSizeMinusOne = 3
		0xE1,   // one SPS
	)
	out = binary.BigEndian.AppendUint16(out, uint16(len(sps)))
	out = append(out, sps...)
	out = append(out, 1) // one PPS
	out = binary.BigEndian.AppendUint16(out, uint16(len(pps)))
	out = append(out, pps...)
	return out, nil
}

// annexBToAVCC converts NAL units to 4-byte length-prefixed form, dropping
// parameter sets and access unit delimiters.
func annexBToAVCC(nalus [][]byte) []byte {
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}
	out := make([]byte, 0, size)
	for _, nalu := range nalus {
		switch h264NalType(nalu) {
		case nalTypeSPS, nalTypePPS, nalTypeAUD:
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(nalu)))
		out = append(out, nalu...)
	}
	return out
}
