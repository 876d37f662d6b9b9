// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package networking

import (
	"context"

	"google.golang.org/grpc"
)

// sendRequest is the wire shape sent to Send: the raw domain payload,
// prefixed with the sending node's id so the receiver can attribute it
// without a generated protobuf message.
type sendRequest struct {
	fromNodeID string
	payload    []byte
}

func encodeSendRequest(r sendRequest) []byte {
	id := []byte(r.fromNodeID)
	out := make([]byte, 2+len(id)+len(r.payload))
	out[0] = byte(len(id) >> 8)
	out[1] = byte(len(id))
	copy(out[2:], id)
	copy(out[2+len(id):], r.payload)
	return out
}

func decodeSendRequest(raw []byte) sendRequest {
	if len(raw) < 2 {
		return sendRequest{}
	}
	idLen := int(raw[0])<<8 | int(raw[1])
	if 2+idLen > len(raw) {
		return sendRequest{}
	}
	return sendRequest{
		fromNodeID: string(raw[2 : 2+idLen]),
		payload:    raw[2+idLen:],
	}
}

// serviceName is not backed by a .proto file: there is no generated
// protobuf service stub in this repository (that glue is explicitly out of
// scope), so the gRPC service is registered by hand against a single Unary
// method carrying raw framed bytes, decoded with RawCodec.
const serviceName = "partitiond.Networking"

func serviceDesc(handler func(ctx context.Context, req sendRequest) error) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Send",
				Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
					var raw []byte
					if err := dec(&raw); err != nil {
						return nil, err
					}
					req := decodeSendRequest(raw)
					if interceptor == nil {
						return []byte("ok"), handler(ctx, req)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Send"}
					out, err := interceptor(ctx, raw, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
						return []byte("ok"), handler(ctx, req)
					})
					return out, err
				},
			},
		},
		Streams: []grpc.StreamDesc{},
	}
}
