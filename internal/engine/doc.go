// Package engine is the container-engine client used by dock-gateway.
//
// # Overview
//
// The engine speaks the Docker-compatible REST API, either over a Unix socket
// or plain TCP. This package turns an Operation into exactly one HTTP call and
// decodes the reply into structured Go values.
//
// # Operations
//
// Operation is a tagged variant keyed by Kind:
//
//	op := engine.ContainerStart("af44af72b086")
//	resp, err := client.Execute(ctx, op)
//
// Each Kind owns one entry in the dispatch table (operation.go) that builds the
// Request and decodes the body. Builders never touch the network, so they are
// testable without an engine.
//
// # Errors
//
// Every failure of Execute is one of:
//
//   - ErrUnreachable: the transport failed (refused, timeout, reset)
//   - *RejectedError: the engine answered with a non-2xx status
//   - ErrDecode: the body could not be decoded
//
// No retries happen here; one Execute is one engine call.
//
// # Event Stream
//
// Events opens the engine's /events feed and returns an EventStream that
// yields one Event per newline-delimited record:
//
//	stream, err := client.Events(ctx, since)
//	for {
//	    ev, err := stream.Next()
//	    if errors.Is(err, engine.ErrDecode) {
//	        continue // one bad record, stream still usable
//	    }
//	    ...
//	}
package engine
