package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/arm-bsa/pcie-exerciser/internal/tlp"
)

// Frame kind tags, the first byte of every frame payload.
const (
	kindRequest    byte = 0x01
	kindCompletion byte = 0x02
)

// Request beat flag bits (second byte of a request frame).
const (
	reqFlagWe         byte = 1 << 0
	reqFlagFirst      byte = 1 << 1
	reqFlagLast       byte = 1 << 2
	reqFlagPasidEn    byte = 1 << 3
	reqFlagPrivileged byte = 1 << 4
	reqFlagExecute    byte = 1 << 5
)

// Completion beat flag bits.
const (
	cplFlagFirst byte = 1 << 0
	cplFlagLast  byte = 1 << 1
	cplFlagEnd   byte = 1 << 2
	cplFlagErr   byte = 1 << 3
)

// EncodeRequest packs one RequestBeat into a transport frame payload.
func EncodeRequest(b tlp.RequestBeat) []byte {
	var flags byte
	if b.We {
		flags |= reqFlagWe
	}
	if b.First {
		flags |= reqFlagFirst
	}
	if b.Last {
		flags |= reqFlagLast
	}
	if b.PasidEn {
		flags |= reqFlagPasidEn
	}
	if b.Privileged {
		flags |= reqFlagPrivileged
	}
	if b.Execute {
		flags |= reqFlagExecute
	}

	out := make([]byte, 0, 32+len(b.Dat)*4)
	out = append(out, kindRequest, flags, b.FirstBE, b.LastBE, b.BE, b.BarHit, b.Attr, b.AT, b.Tag)
	out = appendU16(out, b.Len)
	out = appendU16(out, b.ReqID)
	out = appendU64(out, b.Adr)
	out = appendU32(out, b.PasidVal)
	out = appendU16(out, uint16(len(b.Dat)))
	for _, d := range b.Dat {
		out = appendU32(out, d)
	}
	return out
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(payload []byte) (tlp.RequestBeat, error) {
	if len(payload) < 27 || payload[0] != kindRequest {
		return tlp.RequestBeat{}, fmt.Errorf("transport: malformed request frame")
	}
	flags := payload[1]
	b := tlp.RequestBeat{
		We:         flags&reqFlagWe != 0,
		First:      flags&reqFlagFirst != 0,
		Last:       flags&reqFlagLast != 0,
		PasidEn:    flags&reqFlagPasidEn != 0,
		Privileged: flags&reqFlagPrivileged != 0,
		Execute:    flags&reqFlagExecute != 0,
		FirstBE:    payload[2],
		LastBE:     payload[3],
		BE:         payload[4],
		BarHit:     payload[5],
		Attr:       payload[6],
		AT:         payload[7],
		Tag:        payload[8],
	}
	p := payload[9:]
	b.Len = binary.LittleEndian.Uint16(p[0:2])
	b.ReqID = binary.LittleEndian.Uint16(p[2:4])
	b.Adr = binary.LittleEndian.Uint64(p[4:12])
	b.PasidVal = binary.LittleEndian.Uint32(p[12:16])
	n := binary.LittleEndian.Uint16(p[16:18])
	p = p[18:]
	if len(p) < int(n)*4 {
		return tlp.RequestBeat{}, fmt.Errorf("transport: truncated request payload")
	}
	b.Dat = make([]uint32, n)
	for i := range b.Dat {
		b.Dat[i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	return b, nil
}

// EncodeCompletion packs one CompletionBeat into a transport frame payload.
func EncodeCompletion(c tlp.CompletionBeat) []byte {
	var flags byte
	if c.First {
		flags |= cplFlagFirst
	}
	if c.Last {
		flags |= cplFlagLast
	}
	if c.End {
		flags |= cplFlagEnd
	}
	if c.Err {
		flags |= cplFlagErr
	}

	out := make([]byte, 0, 16+len(c.Dat)*4)
	out = append(out, kindCompletion, flags, c.BE, c.Tag)
	out = appendU16(out, c.CmpID)
	out = appendU16(out, c.ReqID)
	out = appendU16(out, c.LengthRemaining)
	out = appendU16(out, uint16(len(c.Dat)))
	for _, d := range c.Dat {
		out = appendU32(out, d)
	}
	return out
}

// DecodeCompletion is the inverse of EncodeCompletion.
func DecodeCompletion(payload []byte) (tlp.CompletionBeat, error) {
	if len(payload) < 12 || payload[0] != kindCompletion {
		return tlp.CompletionBeat{}, fmt.Errorf("transport: malformed completion frame")
	}
	flags := payload[1]
	c := tlp.CompletionBeat{
		First: flags&cplFlagFirst != 0,
		Last:  flags&cplFlagLast != 0,
		End:   flags&cplFlagEnd != 0,
		Err:   flags&cplFlagErr != 0,
		BE:    payload[2],
		Tag:   payload[3],
	}
	p := payload[4:]
	c.CmpID = binary.LittleEndian.Uint16(p[0:2])
	c.ReqID = binary.LittleEndian.Uint16(p[2:4])
	c.LengthRemaining = binary.LittleEndian.Uint16(p[4:6])
	n := binary.LittleEndian.Uint16(p[6:8])
	p = p[8:]
	if len(p) < int(n)*4 {
		return tlp.CompletionBeat{}, fmt.Errorf("transport: truncated completion payload")
	}
	c.Dat = make([]uint32, n)
	for i := range c.Dat {
		c.Dat[i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	return c, nil
}

// PayloadKind reports which Decode* function a frame payload expects.
func PayloadKind(payload []byte) (byte, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("transport: empty frame")
	}
	return payload[0], nil
}

func appendU16(b []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(b, buf[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
