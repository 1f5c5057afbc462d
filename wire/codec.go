package wire

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// MaxLineBytes bounds a single message line. A full masked deck of hex
// points is about 7KB, so this leaves generous headroom.
const MaxLineBytes = 1 << 20

// Codec frames messages over a byte stream, one JSON object per line.
type Codec struct {
	r *bufio.Scanner
	w io.Writer
}

func NewCodec(rw io.ReadWriter) *Codec {
	sc := bufio.NewScanner(rw)
	sc.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	return &Codec{r: sc, w: rw}
}

// Send writes one message followed by a newline.
func (c *Codec) Send(msg Message) error {
	line, err := Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := c.w.Write(line); err != nil {
		return errors.Wrap(err, "wire: send")
	}
	return nil
}

// Recv reads the next message. It returns io.EOF once the stream ends.
func (c *Codec) Recv() (Message, error) {
	if !c.r.Scan() {
		if err := c.r.Err(); err != nil {
			return nil, errors.Wrap(err, "wire: recv")
		}
		return nil, io.EOF
	}
	return Unmarshal(c.r.Bytes())
}
