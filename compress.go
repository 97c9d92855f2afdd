package kdb

import "encoding/binary"

// compressionThreshold is the payload size (excluding the 8-byte frame
// header) above which the serializer attempts compression. Below this
// the q wire format never bothers - the scheme's own 12-byte framing
// overhead isn't worth it on small messages.
const compressionThreshold = 2000

// Compress encodes b (a full q-IPC frame, header included) using the
// q IPC compression scheme: an 8-byte-aligned run of a 1-byte flag
// word gating 8 tokens, each token either a literal byte or a 2-byte
// (hash, length) back-reference into the already-emitted output. It
// returns b unchanged if b is too short to benefit or if compression
// would not shrink it - callers must still compare lengths themselves
// per the serializer's compression policy. order must match the byte
// order b's own header declares at offset 0 - it governs every
// multi-byte length field Compress writes, including the 4-byte
// uncompressed-length prefix Uncompress later reads back.
func Compress(b []byte, order binary.ByteOrder) (dst []byte) {
	if len(b) <= 17 {
		return b
	}
	i := byte(0)
	f, h0, h := int32(0), int32(0), int32(0)
	g := false
	dst = make([]byte, len(b)/2)
	lenbuf := make([]byte, 4)
	c := 12
	d := c
	e := len(dst)
	p := 0
	q, r, s0 := int32(0), int32(0), int32(0)
	s := int32(8)
	t := int32(len(b))
	a := make([]int32, 256)
	copy(dst[:4], b[:4])
	dst[2] = 1
	order.PutUint32(lenbuf, uint32(len(b)))
	copy(dst[8:], lenbuf)
	for ; s < t; i *= 2 {
		if 0 == i {
			if d > e-17 {
				return b
			}
			i = 1
			dst[c] = byte(f)
			c = d
			d++
			f = 0
		}

		g = (s > t-3)
		if !g {
			h = int32(0xff & (b[s] ^ b[s+1]))
			p = int(a[h])
			g = (0 == p) || (0 != (b[s] ^ b[p]))
		}

		if 0 < s0 {
			a[h0] = s0
			s0 = 0
		}
		if g {
			h0 = h
			s0 = s
			dst[d] = b[s]
			d++
			s++
		} else {
			a[h] = s
			f |= int32(i)
			p += 2
			s += 2
			r = s
			q = min32(s+255, t)
			for b[p] == b[s] {
				s++
				if s >= q {
					break
				}
				p++
			}
			dst[d] = byte(h)
			d++
			dst[d] = byte(s - r)
			d++
		}
	}
	dst[c] = byte(f)
	order.PutUint32(lenbuf, uint32(d))
	copy(dst[4:], lenbuf)
	if int(d) >= len(b) {
		return b
	}
	return dst[:d:d]
}

func min32(a, b int32) int32 {
	if a > b {
		return b
	}
	return a
}

// Uncompress reverses Compress. b is the compressed stream starting at
// the 4-byte uncompressed-length prefix (the frame header must already
// have been stripped off by the caller); order must be the same byte
// order the frame's header declared, matching what Compress used to
// write that prefix. Unlike the teacher's version, every write is
// bounds-checked against the declared length and every back-reference
// against the output written so far: a malformed stream returns
// CompressionError instead of panicking.
func Uncompress(b []byte, order binary.ByteOrder) (dst []byte, err error) {
	if len(b) < 4 {
		return nil, compressionError("compressed stream shorter than its 4-byte length prefix")
	}
	usize := order.Uint32(b[0:4])
	dst = make([]byte, usize)
	n, r, f, s := int32(0), int32(0), int32(0), int32(8)
	p := s
	i := int16(0)
	d := int32(4)
	aa := make([]int32, 256)
	for int(s) < len(dst) {
		if i == 0 {
			if int(d) >= len(b) {
				return nil, compressionError("truncated before flag byte")
			}
			f = 0xff & int32(b[d])
			d++
			i = 1
		}
		if (f & int32(i)) != 0 {
			if int(d) >= len(b) {
				return nil, compressionError("truncated before back-reference hash byte")
			}
			r = aa[0xff&int32(b[d])]
			d++
			if r < 0 || r+1 >= s {
				return nil, compressionError("back-reference offset %d underflows output position %d", r, s)
			}
			if s+1 >= int32(len(dst)) {
				return nil, compressionError("back-reference would write past declared length %d", usize)
			}
			dst[s] = dst[r]
			s++
			r++
			dst[s] = dst[r]
			s++
			r++
			if int(d) >= len(b) {
				return nil, compressionError("truncated before run length byte")
			}
			n = 0xff & int32(b[d])
			d++
			if s+n > int32(len(dst)) || r+n > int32(len(dst)) {
				return nil, compressionError("back-reference run overruns declared length %d", usize)
			}
			for m := int32(0); m < n; m++ {
				dst[s+m] = dst[r+m]
			}
		} else {
			if int(d) >= len(b) {
				return nil, compressionError("truncated before literal byte")
			}
			if s >= int32(len(dst)) {
				return nil, compressionError("literal would write past declared length %d", usize)
			}
			dst[s] = b[d]
			s++
			d++
		}
		for p < s-1 {
			aa[(0xff&int32(dst[p]))^(0xff&int32(dst[p+1]))] = p
			p++
		}
		if (f & int32(i)) != 0 {
			s += n
			p = s
		}
		i *= 2
		if i == 256 {
			i = 0
		}
	}
	if int(s) != len(dst) {
		return nil, compressionError("decompressed %d bytes, declared length was %d", s, usize)
	}
	return dst, nil
}
