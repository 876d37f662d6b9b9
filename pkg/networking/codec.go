// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package networking

import "google.golang.org/grpc/encoding"

// RawCodecName is registered with grpc's encoding package so callers can
// select it per-call via grpc.CallContentSubtype / grpc.ForceCodec.
const RawCodecName = "partitiondraw"

// RawCodec passes []byte payloads through untouched instead of running them
// through protobuf marshaling. This lets Networking move arbitrary,
// pre-serialized domain messages over a plain grpc.ServiceDesc without a
// generated protobuf service, avoiding a double-encode of a payload that
// is already serialized.
type RawCodec struct {
	Parent encoding.Codec
}

func (c *RawCodec) Name() string { return RawCodecName }

func (c *RawCodec) Marshal(v interface{}) ([]byte, error) {
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	return c.Parent.Marshal(v)
}

func (c *RawCodec) Unmarshal(data []byte, v interface{}) error {
	if ptr, ok := v.(*[]byte); ok {
		*ptr = append([]byte(nil), data...)
		return nil
	}
	return c.Parent.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(&RawCodec{Parent: encoding.GetCodec("proto")})
}
