package cbf

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	version       = "###CBF: VERSION 1.5"
	mimeBoundary  = "--CIF-BINARY-FORMAT-SECTION--"
	base64Columns = 76
	padBoundary   = 4096
)

// WriteFile renders the container to w. With MIMEHeaders and Base64, binary
// sections are emitted the way miniCBF consumers expect: boundary markers,
// conversion and size headers, optional Content-MD5, and base64 payload.
func (h *Handle) WriteFile(w io.Writer, flags WriteFlags, enc Encoding) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, version)

	for _, block := range h.blocks {
		fmt.Fprintf(bw, "\ndata_%s\n", block.name)
		for _, cat := range block.categories {
			fmt.Fprintln(bw, "\nloop_")
			for _, col := range cat.columns {
				fmt.Fprintf(bw, "_%s.%s\n", cat.name, col.name)
			}
			for _, col := range cat.columns {
				if col.binary != nil {
					if err := writeBinary(bw, col.binary, flags, enc); err != nil {
						return err
					}
					continue
				}
				writeText(bw, col.text)
			}
		}
	}
	return bw.Flush()
}

func writeText(w *bufio.Writer, value string) {
	if strings.ContainsRune(value, '\n') {
		// Semicolon-delimited text field.
		fmt.Fprintf(w, ";%s\n;\n", value)
		return
	}
	if strings.ContainsAny(value, " \t") || value == "" {
		fmt.Fprintf(w, "%q\n", value)
		return
	}
	fmt.Fprintf(w, "%s\n", value)
}

func writeBinary(w *bufio.Writer, b *binarySection, flags WriteFlags, enc Encoding) error {
	if enc != Base64 {
		return fmt.Errorf("cbf: encoding %d unsupported", enc)
	}

	fmt.Fprintln(w, ";"+mimeBoundary)
	if flags&MIMEHeaders != 0 {
		fmt.Fprintln(w, "Content-Type: application/octet-stream;")
		fmt.Fprintln(w, `     conversion="x-CBF_BYTE_OFFSET"`)
		fmt.Fprintln(w, "Content-Transfer-Encoding: BASE64")
		fmt.Fprintf(w, "X-Binary-Size: %d\n", len(b.data))
		fmt.Fprintf(w, "X-Binary-ID: %d\n", b.id)
		fmt.Fprintf(w, "X-Binary-Element-Type: \"%s %d-bit integer\"\n", signedness(b.signed), b.elemSize*8)
		fmt.Fprintf(w, "X-Binary-Element-Byte-Order: %s\n", strings.ToUpper(b.byteOrder))
		if flags&MsgDigest != 0 {
			fmt.Fprintf(w, "Content-MD5: %s\n", contentMD5(b.data))
		}
		fmt.Fprintf(w, "X-Binary-Number-of-Elements: %d\n", b.nelem)
		fmt.Fprintf(w, "X-Binary-Size-Fastest-Dimension: %d\n", b.dimFast)
		fmt.Fprintf(w, "X-Binary-Size-Second-Dimension: %d\n", b.dimMid)
		if b.dimSlow > 0 {
			fmt.Fprintf(w, "X-Binary-Size-Third-Dimension: %d\n", b.dimSlow)
		}
		if flags&Pad4K != 0 {
			fmt.Fprintf(w, "X-Binary-Size-Padding: %d\n", padLen(len(b.data)))
		}
	}
	fmt.Fprintln(w)

	payload := b.data
	if flags&Pad4K != 0 {
		payload = append(append([]byte{}, b.data...), make([]byte, padLen(len(b.data)))...)
	}
	if err := writeBase64(w, payload); err != nil {
		return err
	}

	fmt.Fprintln(w, mimeBoundary+"--")
	fmt.Fprintln(w, ";")
	return nil
}

func writeBase64(w *bufio.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for off := 0; off < len(encoded); off += base64Columns {
		end := off + base64Columns
		if end > len(encoded) {
			end = len(encoded)
		}
		if _, err := fmt.Fprintln(w, encoded[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func padLen(n int) int {
	return (padBoundary - n%padBoundary) % padBoundary
}

func signedness(signed bool) string {
	if signed {
		return "signed"
	}
	return "unsigned"
}
