// Package opindex encodes the two secondary indexes §3 requires on every
// op collection — {d:1, v:1} and {src:1, seq:1, v:1} — directly into the
// embedded engine's key space. The encoding is adapted from the
// teacher's composite index codec (pkg/index/codec.go in the retrieved
// yep_crdt module): big-endian integers with the sign bit flipped so
// negative and positive values still sort correctly as raw bytes, and
// null-terminated strings so a shorter key never becomes a prefix of a
// longer one at the same field.
package opindex

import (
	"bytes"
	"encoding/binary"
)

const (
	dvPrefix byte = 'D' // {d:1, v:1} — history scan
	svPrefix byte = 'S' // {src:1, seq:1, v:1} — idempotency lookup
)

func putString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0x00)
}

func putInt64(buf *bytes.Buffer, v int64) {
	// Flip the sign bit so two's-complement negative values still sort
	// below positive ones under a plain byte comparison.
	binary.Write(buf, binary.BigEndian, uint64(v)^0x8000000000000000)
}

// DVPrefix returns the key prefix that identifies every {d:1,v:1} index
// entry for one document within one op collection.
func DVPrefix(opCollection, docID string) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(dvPrefix)
	putString(buf, opCollection)
	putString(buf, docID)
	return buf.Bytes()
}

// EncodeDV returns the full {d:1,v:1} index key for one op row.
func EncodeDV(opCollection, docID string, v int64, opID string) []byte {
	buf := bytes.NewBuffer(DVPrefix(opCollection, docID))
	putInt64(buf, v)
	putString(buf, opID)
	return buf.Bytes()
}

// SVPrefix returns the key prefix that identifies every {src,seq,v} index
// entry for one (src, seq) pair within one op collection.
func SVPrefix(opCollection, src string, seq int64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(svPrefix)
	putString(buf, opCollection)
	putString(buf, src)
	putInt64(buf, seq)
	return buf.Bytes()
}

// EncodeSV returns the full {src,seq,v} index key for one op row.
func EncodeSV(opCollection, src string, seq, v int64, opID string) []byte {
	buf := bytes.NewBuffer(SVPrefix(opCollection, src, seq))
	putInt64(buf, v)
	putString(buf, opID)
	return buf.Bytes()
}
