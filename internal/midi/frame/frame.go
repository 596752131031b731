// Package frame splits raw MIDI byte runs into the units native APIs accept.
package frame

// ShortLen returns the length of the channel or system message that starts
// with status, or 0 if status does not start a fixed-length message (data
// bytes, SysEx and the undefined system codes).
func ShortLen(status byte) int {
	switch {
	case status < 0x80:
		return 0
	case status < 0xC0, status >= 0xE0 && status < 0xF0:
		return 3
	case status < 0xE0:
		return 2
	}
	switch status {
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	case 0xF6, 0xF8, 0xFA, 0xFB, 0xFC, 0xFE, 0xFF:
		return 1
	}
	return 0
}

// Split cuts data into complete fixed-length messages. It reports false if
// data holds anything else (SysEx, running status, truncated messages), in
// which case the caller should send data as one long message.
func Split(data []byte) ([][]byte, bool) {
	var msgs [][]byte
	for i := 0; i < len(data); {
		n := ShortLen(data[i])
		if n == 0 || i+n > len(data) {
			return nil, false
		}
		msgs = append(msgs, data[i:i+n])
		i += n
	}
	return msgs, len(msgs) > 0
}

// Pack encodes a short message the way winmm-style APIs expect: status in
// the low byte, data bytes above it.
func Pack(msg []byte) uint32 {
	var v uint32
	for i := len(msg) - 1; i >= 0; i-- {
		v = v<<8 | uint32(msg[i])
	}
	return v
}

// Unpack reverses Pack, trimming to the length the status byte implies. It
// returns nil for a word that does not start with a fixed-length status.
func Unpack(word uint32) []byte {
	status := byte(word)
	n := ShortLen(status)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(word >> (8 * i))
	}
	return out
}
