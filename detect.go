package transcode

import "encoding/binary"

// DetectVideoCodec guesses the codec of one elementary-stream frame from its
// leading bytes. VP8 delta frames carry no signature and come back as
// VideoCodecUnknown, so callers sniff the first frame of a stream.
func DetectVideoCodec(frame []byte) VideoCodec {
	switch {
	case isVP8Keyframe(frame):
		return VideoCodecVP8
	case isH264AnnexB(frame):
		return VideoCodecH264
	case isVP9Frame(frame):
		return VideoCodecVP9
	case isAV1OBU(frame):
		return VideoCodecAV1
	}
	return VideoCodecUnknown
}

// isVP8Keyframe checks the keyframe start code (RFC 6386 9.1).
func isVP8Keyframe(data []byte) bool {
	return len(data) >= 10 && data[0]&0x01 == 0 &&
		data[3] == 0x9D && data[4] == 0x01 && data[5] == 0x2A
}

// isH264AnnexB checks for a 3 or 4 byte start code followed by a slice,
// parameter set or delimiter NAL unit (H.264 Table 7-1).
func isH264AnnexB(data []byte) bool {
	var nal int
	switch {
	case len(data) >= 5 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1:
		nal = 4
	case len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 1:
		nal = 3
	default:
		return false
	}
	if data[nal]&0x80 != 0 { // forbidden_zero_bit
		return false
	}
	typ := data[nal] & 0x1F
	return (typ >= 1 && typ <= 12) || (typ >= 19 && typ <= 21)
}

// isVP9Frame reports whether data parses as a VP9 uncompressed header.
func isVP9Frame(data []byte) bool {
	_, ok := parseVP9Header(data)
	return ok
}

// isAV1OBU checks for an OBU header with the forbidden bit clear and a
// defined OBU type.
func isAV1OBU(data []byte) bool {
	if len(data) < 2 || data[0]&0x80 != 0 {
		return false
	}
	switch (data[0] >> 3) & 0x0F {
	case 1, 2, 3, 4, 5, 6, 7, 8, 15:
		return true
	}
	return false
}

// IsKeyframe reports whether data starts an independently decodable frame.
// It returns false when the codec is not understood.
func IsKeyframe(codec VideoCodec, data []byte) bool {
	switch codec {
	case VideoCodecVP8:
		return len(data) > 0 && data[0]&0x01 == 0
	case VideoCodecVP9:
		h, ok := parseVP9Header(data)
		return ok && h.keyframe
	default:
		return false
	}
}

// KeyframeSize returns the coded dimensions carried by a VP8 or VP9 keyframe.
func KeyframeSize(codec VideoCodec, data []byte) (width, height int, ok bool) {
	switch codec {
	case VideoCodecVP8:
		if !isVP8Keyframe(data) {
			return 0, 0, false
		}
		// 14-bit sizes with 2-bit scaling in the top bits
		w := int(binary.LittleEndian.Uint16(data[6:8]) & 0x3FFF)
		h := int(binary.LittleEndian.Uint16(data[8:10]) & 0x3FFF)
		return w, h, w > 0 && h > 0
	case VideoCodecVP9:
		hdr, ok := parseVP9Header(data)
		if !ok || !hdr.keyframe || hdr.width == 0 {
			return 0, 0, false
		}
		return hdr.width, hdr.height, true
	default:
		return 0, 0, false
	}
}

type vp9Header struct {
	profile  int
	keyframe bool
	width    int
	height   int
}

const vp9ColorSpaceRGB = 7

// parseVP9Header reads the uncompressed header far enough to get the frame
// type and, for keyframes, the frame size (VP9 bitstream spec 6.2).
func parseVP9Header(data []byte) (vp9Header, bool) {
	var h vp9Header
	br := bitReader{data: data}

	if br.read(2) != 2 { // frame_marker
		return h, false
	}
	low := br.read(1)
	high := br.read(1)
	h.profile = int(high<<1 | low)
	if h.profile == 3 {
		br.read(1) // reserved_zero
	}
	if br.read(1) == 1 { // show_existing_frame
		return h, !br.overrun
	}
	h.keyframe = br.read(1) == 0
	br.read(1) // show_frame
	br.read(1) // error_resilient_mode
	if !h.keyframe {
		return h, !br.overrun
	}

	if br.read(8) != 0x49 || br.read(8) != 0x83 || br.read(8) != 0x42 {
		return h, false
	}

	// color_config
	if h.profile >= 2 {
		br.read(1) // ten_or_twelve_bit
	}
	if br.read(3) != vp9ColorSpaceRGB {
		br.read(1) // color_range
		if h.profile == 1 || h.profile == 3 {
			br.read(3) // subsampling_x, subsampling_y, reserved_zero
		}
	} else if h.profile == 1 || h.profile == 3 {
		br.read(1) // reserved_zero
	}

	h.width = int(br.read(16)) + 1
	h.height = int(br.read(16)) + 1
	if br.overrun {
		return vp9Header{}, false
	}
	return h, true
}

// bitReader reads MSB-first bit fields.
type bitReader struct {
	data    []byte
	pos     int // Bit position
	overrun bool
}

func (r *bitReader) read(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		byteIdx := r.pos >> 3
		if byteIdx >= len(r.data) {
			r.overrun = true
			return 0
		}
		bit := (r.data[byteIdx] >> (7 - uint(r.pos&7))) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v
}
