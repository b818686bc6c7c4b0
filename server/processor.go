package server

import (
	"context"
	"fmt"
	"grocketmq/codec"
	"grocketmq/message"
	"grocketmq/middleware"
)

// JSONProcessor adapts a typed function to a processor. The request body is decoded
// into Args and the returned Reply is encoded as the response body; an empty body
// leaves Args at its zero value.
//
//	svr.RegisterProcessor(codeAdd, server.JSONProcessor(func(ctx context.Context, args *Args) (*Reply, error) {
//		return &Reply{Result: args.A + args.B}, nil
//	}))
func JSONProcessor[Args, Reply any](fn func(ctx context.Context, args *Args) (*Reply, error)) middleware.HandlerFunc {
	c := codec.GetCodec(codec.CodecTypeJSON)
	return func(ctx context.Context, req *message.Command) (*message.Command, error) {
		args := new(Args)
		if len(req.Body()) > 0 {
			if err := c.Decode(req.Body(), args); err != nil {
				return nil, fmt.Errorf("decode request body: %w", err)
			}
		}

		reply, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}

		resp := message.NewResponseCommand(message.Success, req.Opaque())
		if reply != nil {
			body, err := c.Encode(reply)
			if err != nil {
				return nil, fmt.Errorf("encode reply: %w", err)
			}
			resp.SetBody(body)
		}
		return resp, nil
	}
}
