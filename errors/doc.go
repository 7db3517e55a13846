// Package errors provides standardized error handling for the transport and
// framing layer.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: connect/bind/send/receive failures, timeouts, peer closes (retry after backoff)
//   - Invalid: undecodable payloads, rejected frames, bad arguments (drop the unit, keep going)
//   - Fatal: unusable configuration, missing drivers (stop processing)
//
// Background loops wrap every fault before offering it to an error policy:
//
//	if err := sock.Send(ctx, msg); err != nil {
//	    err = errors.WrapTransient(err, "Publisher", "sendLoop", "send")
//	    if !p.report(ctx, err) {
//	        return
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows "component.method: action failed: cause", so log lines
// read the same regardless of which layer produced the error. The original
// cause stays reachable through errors.Is and errors.As.
package errors
