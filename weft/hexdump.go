package weft

import (
	"fmt"
	"strings"
)

// HexDump renders data as an offset-addressed hex and ASCII panel, the
// usual way to eyeball a binary document while debugging framing.
func HexDump(data []byte) string {
	const width = 16
	var sb strings.Builder
	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		fmt.Fprintf(&sb, "%08x  ", off)
		for i := 0; i < width; i++ {
			if i == width/2 {
				sb.WriteByte(' ')
			}
			if i < len(row) {
				fmt.Fprintf(&sb, "%02x ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" |")
		for _, c := range row {
			if c >= 0x20 && c < 0x7f {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}
