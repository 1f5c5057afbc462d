package dealer

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Point is an affine point on secp256k1. Masked cards travel the wire and
// the settlement card field as points.
type Point struct {
	X, Y *big.Int
}

func (p Point) Clone() Point {
	return Point{X: new(big.Int).Set(p.X), Y: new(big.Int).Set(p.Y)}
}

// Hex encodes the point uncompressed, 04 prefix then both coordinates
// zero padded to 32 bytes.
func (p Point) Hex() string {
	buf := make([]byte, 65)
	buf[0] = 0x04
	p.X.FillBytes(buf[1:33])
	p.Y.FillBytes(buf[33:65])
	return hex.EncodeToString(buf)
}

// ParsePoint decodes an uncompressed hex point and checks it lies on the
// curve.
func ParsePoint(s string) (Point, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Point{}, errors.Wrap(err, "dealer: decode point")
	}
	if len(raw) != 65 || raw[0] != 0x04 {
		return Point{}, errors.Errorf("dealer: malformed point of %d bytes", len(raw))
	}
	p := Point{
		X: new(big.Int).SetBytes(raw[1:33]),
		Y: new(big.Int).SetBytes(raw[33:65]),
	}
	if !crypto.S256().IsOnCurve(p.X, p.Y) {
		return Point{}, errors.New("dealer: point not on curve")
	}
	return p, nil
}

// mask multiplies the point by the scalar k.
func mask(p Point, k *big.Int) Point {
	x, y := crypto.S256().ScalarMult(p.X, p.Y, k.Bytes())
	return Point{X: x, Y: y}
}

// unmask multiplies the point by the modular inverse of k, undoing mask.
func unmask(p Point, k *big.Int) Point {
	inv := new(big.Int).ModInverse(k, crypto.S256().Params().N)
	return mask(p, inv)
}
