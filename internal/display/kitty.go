package display

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Kitty graphics protocol framing. Each escape carries at most maxChunk
// bytes of base64 payload.
const (
	apcStart = "\x1b_G"
	apcEnd   = "\x1b\\"
	maxChunk = 4096
)

// KittyEncoder writes PNG data using the kitty graphics protocol.
type KittyEncoder struct {
	out     io.Writer
	columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

// WithColumns scales the placement to n cells wide; 0 keeps the natural size.
func (e *KittyEncoder) WithColumns(n int) *KittyEncoder {
	e.columns = n
	return e
}

// control is the key list of the first escape: transmit and display (a=T)
// PNG data (f=100) without replies (q=2).
func (e *KittyEncoder) control() string {
	if e.columns > 0 {
		return fmt.Sprintf("a=T,f=100,q=2,c=%d", e.columns)
	}
	return "a=T,f=100,q=2"
}

// Encode transmits png and places it at the cursor. A payload spanning
// several escapes marks every escape but the last with m=1.
func (e *KittyEncoder) Encode(png []byte) error {
	if len(png) == 0 {
		return nil
	}

	payload := base64.StdEncoding.EncodeToString(png)
	for first := true; ; first = false {
		n := min(len(payload), maxChunk)
		chunk, rest := payload[:n], payload[n:]

		var keys []string
		if first {
			keys = append(keys, e.control())
		}
		switch {
		case rest != "":
			keys = append(keys, "m=1")
		case !first:
			keys = append(keys, "m=0")
		}

		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", apcStart, strings.Join(keys, ","), chunk, apcEnd); err != nil {
			return err
		}
		if rest == "" {
			return nil
		}
		payload = rest
	}
}
