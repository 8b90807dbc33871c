/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blocksvc

import (
	"github.com/valyala/fasthttp"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
)

// HTTPListener exposes Service over a high-throughput fasthttp server, an
// alternative to the default net/rpc transport for deployments that want
// a single connection pool shared with other HTTP traffic on the node.
type HTTPListener struct {
	svc *Service
}

func NewHTTPListener(svc *Service) *HTTPListener {
	return &HTTPListener{svc: svc}
}

// ListenAndServe blocks serving the block-service verb dispatch at addr;
// "/read", "/write", "/get", "/set", "/unset", "/exists", "/task" and
// "/task/remove" map 1:1 onto the RPC surface of spec §6.
func (l *HTTPListener) ListenAndServe(addr string) error {
	return fasthttp.ListenAndServe(addr, l.handler)
}

func (l *HTTPListener) handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/read":
		l.handleRead(ctx)
	case "/write":
		l.handleWrite(ctx)
	case "/get":
		l.handleGet(ctx)
	case "/set":
		l.handleSet(ctx)
	case "/unset":
		l.handleUnset(ctx)
	case "/exists":
		l.handleExists(ctx)
	case "/task":
		l.handleNewTask(ctx)
	case "/task/remove":
		l.handleRemoveTask(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (l *HTTPListener) handleRead(ctx *fasthttp.RequestCtx) {
	var args ReadArgs
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	reply, err := l.svc.Read(args)
	if err != nil {
		nlog.Warningf("blocksvc http: read failed: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(cos.MustMarshal(reply))
}

func (l *HTTPListener) handleWrite(ctx *fasthttp.RequestCtx) {
	var args WriteArgs
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	offsets, err := l.svc.Write(args)
	if err != nil {
		nlog.Warningf("blocksvc http: write failed: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(cos.MustMarshal(offsets))
}

func (l *HTTPListener) handleExists(ctx *fasthttp.RequestCtx) {
	var args ExistsArgs
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	exists, err := l.svc.Exists(args)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(cos.MustMarshal(exists))
}

func (l *HTTPListener) handleGet(ctx *fasthttp.RequestCtx) {
	var args KeyArgs
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	val, err := l.svc.Get(args)
	if err != nil {
		nlog.Warningf("blocksvc http: get failed: %v", err)
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	ctx.SetBody(val)
}

func (l *HTTPListener) handleSet(ctx *fasthttp.RequestCtx) {
	var args SetArgs
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	if err := l.svc.Set(args); err != nil {
		nlog.Warningf("blocksvc http: set failed: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

func (l *HTTPListener) handleUnset(ctx *fasthttp.RequestCtx) {
	var args KeyArgs
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	if err := l.svc.Unset(args); err != nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (l *HTTPListener) handleNewTask(ctx *fasthttp.RequestCtx) {
	var task cos.UUID
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &task); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	if err := l.svc.NewTask(task); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

func (l *HTTPListener) handleRemoveTask(ctx *fasthttp.RequestCtx) {
	var task cos.UUID
	if err := cos.JSON.Unmarshal(ctx.PostBody(), &task); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	if err := l.svc.RemoveTask(task); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}
