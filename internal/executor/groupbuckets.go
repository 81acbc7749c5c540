package executor

import (
	"encoding/binary"
	"math"

	llamadb "github.com/lychee-technology/llamadb"
)

// groupBucket is the materialized rowset for one distinct GROUP BY key.
// Rows keep their input order.
type groupBucket struct {
	rows [][]llamadb.Value
}

func (g *groupBucket) anyRow() ([]llamadb.Value, bool) {
	if len(g.rows) == 0 {
		return nil, false
	}
	return g.rows[0], true
}

func (g *groupBucket) count() uint64 { return uint64(len(g.rows)) }

// groupBuckets collects rows into buckets keyed by the resolved
// GROUP BY tuple. Unlike `=`, the key treats NULL as equal to NULL, and
// floats compare by bit pattern (NaN is unrepresentable, so bit
// equality is value equality). Buckets iterate in first-seen order.
type groupBuckets struct {
	buckets map[string]*groupBucket
	order   []string
}

func newGroupBuckets() *groupBuckets {
	return &groupBuckets{buckets: make(map[string]*groupBucket)}
}

func (b *groupBuckets) insert(key []llamadb.Value, row []llamadb.Value) {
	bucket := b.ensure(key)
	bucket.rows = append(bucket.rows, row)
}

// ensure returns the bucket for key, creating an empty one if needed.
func (b *groupBuckets) ensure(key []llamadb.Value) *groupBucket {
	k := encodeGroupKey(key)
	bucket, ok := b.buckets[k]
	if !ok {
		bucket = &groupBucket{}
		b.buckets[k] = bucket
		b.order = append(b.order, k)
	}
	return bucket
}

func (b *groupBuckets) ordered() []*groupBucket {
	out := make([]*groupBucket, len(b.order))
	for i, k := range b.order {
		out[i] = b.buckets[k]
	}
	return out
}

// encodeGroupKey renders a key tuple as a canonical byte string: a kind
// tag per value followed by a length-delimited payload, so that two
// tuples collide exactly when they are value-identical.
func encodeGroupKey(key []llamadb.Value) string {
	var buf []byte
	var scratch [8]byte
	for _, v := range key {
		buf = append(buf, byte(v.Kind()))
		switch v.Kind() {
		case llamadb.ValueKindNull:
		case llamadb.ValueKindBytes:
			payload := v.AsBytes()
			binary.BigEndian.PutUint64(scratch[:], uint64(len(payload)))
			buf = append(buf, scratch[:]...)
			buf = append(buf, payload...)
		case llamadb.ValueKindString:
			payload := v.AsString()
			binary.BigEndian.PutUint64(scratch[:], uint64(len(payload)))
			buf = append(buf, scratch[:]...)
			buf = append(buf, payload...)
		case llamadb.ValueKindSignedInt:
			binary.BigEndian.PutUint64(scratch[:], uint64(v.AsSignedInt()))
			buf = append(buf, scratch[:]...)
		case llamadb.ValueKindUnsignedInt:
			binary.BigEndian.PutUint64(scratch[:], v.AsUnsignedInt())
			buf = append(buf, scratch[:]...)
		case llamadb.ValueKindFloat:
			binary.BigEndian.PutUint64(scratch[:], math.Float64bits(v.AsFloat()))
			buf = append(buf, scratch[:]...)
		}
	}
	return string(buf)
}
