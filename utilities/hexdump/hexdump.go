// Package hexdump renders sector contents for trace-level diagnostics.
package hexdump

import (
	"fmt"
	"strings"
)

// IsZero reports whether every byte of b is zero. An empty slice counts as zero.
func IsZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Dump formats b like `xxd`: a hex offset, the bytes in hex with an extra space
// every 8 bytes, and the printable ASCII characters at the end of the row.
func Dump(b []byte, bytesPerRow int) string {
	if bytesPerRow <= 0 {
		bytesPerRow = 16
	}

	var out strings.Builder
	ascii := make([]byte, 0, bytesPerRow)

	for firstByte := 0; firstByte < len(b); firstByte += bytesPerRow {
		fmt.Fprintf(&out, "%08x :", firstByte)
		ascii = ascii[:0]

		for j := firstByte; j < firstByte+bytesPerRow; j++ {
			// every 8 bytes add extra spacing to make it easier to read
			if j%8 == 0 {
				out.WriteByte(' ')
			}
			if j >= len(b) {
				out.WriteString("   ")
				ascii = append(ascii, ' ')
				continue
			}

			fmt.Fprintf(&out, " %02x", b[j])
			if b[j] < 32 || b[j] > 126 {
				ascii = append(ascii, '.')
			} else {
				ascii = append(ascii, b[j])
			}
		}
		fmt.Fprintf(&out, "  %s\n", ascii)
	}
	return out.String()
}
