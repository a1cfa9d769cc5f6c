package opindex

import (
	"bytes"
	"sort"
	"testing"
)

func TestEncodeDVOrdersByVersion(t *testing.T) {
	keys := [][]byte{
		EncodeDV("o_docs", "doc1", 5, "op-e"),
		EncodeDV("o_docs", "doc1", 1, "op-a"),
		EncodeDV("o_docs", "doc1", 3, "op-c"),
	}
	sorted := make([][]byte, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	if !bytes.Equal(sorted[0], keys[1]) || !bytes.Equal(sorted[1], keys[2]) || !bytes.Equal(sorted[2], keys[0]) {
		t.Fatalf("keys did not sort in version order")
	}
}

func TestDVPrefixIsPrefixOfEncodedKey(t *testing.T) {
	prefix := DVPrefix("o_docs", "doc1")
	key := EncodeDV("o_docs", "doc1", 2, "op-b")
	if !bytes.HasPrefix(key, prefix) {
		t.Fatalf("expected %x to have prefix %x", key, prefix)
	}

	other := DVPrefix("o_docs", "doc2")
	if bytes.HasPrefix(key, other) {
		t.Fatalf("key for doc1 should not match doc2's prefix")
	}
}

func TestEncodeSVOrdersBySeqThenVersion(t *testing.T) {
	a := EncodeSV("o_docs", "client-1", 1, 10, "op-a")
	b := EncodeSV("o_docs", "client-1", 2, 1, "op-b")
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected seq=1 key to sort before seq=2 key")
	}
}

func TestSVPrefixMatchesOnlySameSrcSeq(t *testing.T) {
	prefix := SVPrefix("o_docs", "client-1", 7)
	match := EncodeSV("o_docs", "client-1", 7, 3, "op-x")
	if !bytes.HasPrefix(match, prefix) {
		t.Fatalf("expected match to have prefix")
	}
	mismatch := EncodeSV("o_docs", "client-1", 8, 3, "op-y")
	if bytes.HasPrefix(mismatch, prefix) {
		t.Fatalf("seq=8 key should not match seq=7 prefix")
	}
}
