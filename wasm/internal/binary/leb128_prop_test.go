package binary

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLEB128RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("u32 round trips", prop.ForAll(
		func(v uint32) bool {
			r := NewReader(EncodeUint(uint64(v)))
			got, err := r.ReadUint(32)
			return err == nil && uint32(got) == v && r.Len() == 0
		},
		gen.UInt32(),
	))

	properties.Property("u64 round trips", prop.ForAll(
		func(v uint64) bool {
			r := NewReader(EncodeUint(v))
			got, err := r.ReadUint(64)
			return err == nil && got == v && r.Len() == 0
		},
		gen.UInt64(),
	))

	properties.Property("s32 round trips", prop.ForAll(
		func(v int32) bool {
			r := NewReader(EncodeInt(int64(v)))
			got, err := r.ReadInt(32)
			return err == nil && int32(got) == v && r.Len() == 0
		},
		gen.Int32(),
	))

	properties.Property("s33 round trips", prop.ForAll(
		func(v int64) bool {
			r := NewReader(EncodeInt(v))
			got, err := r.ReadInt(33)
			return err == nil && got == v && r.Len() == 0
		},
		gen.Int64Range(-(1 << 32), 1<<32-1),
	))

	properties.Property("s64 round trips", prop.ForAll(
		func(v int64) bool {
			r := NewReader(EncodeInt(v))
			got, err := r.ReadInt(64)
			return err == nil && got == v && r.Len() == 0
		},
		gen.Int64(),
	))

	properties.Property("writer matches package encoders", prop.ForAll(
		func(u uint64, s int64) bool {
			w := NewWriter()
			w.WriteUint(u)
			w.WriteInt(s)
			r := NewReader(w.Bytes())
			gu, err := r.ReadUint(64)
			if err != nil || gu != u {
				return false
			}
			gs, err := r.ReadInt(64)
			return err == nil && gs == s && r.Len() == 0
		},
		gen.UInt64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestLEB128TruncationNeverPanics(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every proper prefix fails cleanly", prop.ForAll(
		func(v uint64) bool {
			enc := EncodeUint(v)
			for i := 0; i < len(enc); i++ {
				if _, err := NewReader(enc[:i]).ReadUint(64); err == nil {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
