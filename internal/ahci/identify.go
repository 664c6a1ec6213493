package ahci

import (
	"golang.org/x/text/encoding/unicode"
)

// ModelString/SerialString decode the IDENTIFY DEVICE string fields.
// ATA strings are stored as byte-swapped-per-word ASCII: each word
// carries two characters, the first in its high byte. decodeATAString
// widens every character byte to its own big-endian 16-bit code unit and
// runs the result through golang.org/x/text/encoding/unicode's UTF-16BE
// decoder, which yields one rune per byte in high-then-low order -- the
// unscrambling the teacher's SATA driver does by hand, byte by byte, in
// its IDENTIFY parsing path.
var ataStringDecoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()

func decodeATAString(words []uint16) string {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		raw[i*4+1] = byte(w >> 8)
		raw[i*4+3] = byte(w)
	}
	out, err := ataStringDecoder.Bytes(raw)
	if err != nil {
		return ""
	}
	return trimTrailingSpace(string(out))
}

func trimTrailingSpace(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == ' ' || s[end-1] == 0) {
		end--
	}
	return s[:end]
}

// ModelString returns the simulated disk's model name, words 27-46 of the
// IDENTIFY response.
func (d *Disk) ModelString() string {
	id := d.Identify()
	return decodeATAString(id[27:47])
}

// SerialString returns the simulated disk's serial number, words 10-19.
func (d *Disk) SerialString() string {
	id := d.Identify()
	return decodeATAString(id[10:20])
}

// SetModel/SetSerial populate the IDENTIFY string fields for tests/boot
// configuration, encoding ASCII text into the word-swapped layout.
func (d *Disk) SetModel(s string) {
	d.setATAString(27, 47, s)
}

func (d *Disk) SetSerial(s string) {
	d.setATAString(10, 20, s)
}

func (d *Disk) setATAString(first, last int, s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words := last - first
	padded := make([]byte, words*2)
	copy(padded, s)
	for i := range padded {
		if padded[i] == 0 {
			padded[i] = ' '
		}
	}
	for i := 0; i < words; i++ {
		d.identify[first+i] = uint16(padded[i*2])<<8 | uint16(padded[i*2+1])
	}
}
