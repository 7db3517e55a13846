// Package tcp implements the raw TCP chunk transport: a listener that serves
// one client at a time and hands every read to a ChunkHandler.
//
// The transport has no framing of its own. Chunks arrive in read order and
// may split or join application frames arbitrarily; package framing
// recovers frames from them.
//
// # Single client
//
// At most one client is attached. While it is idle the serve loop polls the
// listener with a short accept deadline, and a pending connection replaces
// the attached client. Reads use a short deadline (100ms by default) so a
// stop request is seen within one poll interval. Timeouts are not errors.
//
// # Failures
//
// A zero-length read or io.EOF is reported as errors.ErrPeerClosed; any other
// read failure as errors.ErrConnectionLost. Both detach the client and the
// loop goes back to accepting. A failed listener is closed and rebound after
// a fixed backoff. Every failure is offered to the bus.ErrorPolicy passed to
// Start; a Stop decision halts the server.
//
// Example:
//
//	srv, err := tcp.NewServer(tcp.Config{Bind: "0.0.0.0", Port: 8051})
//	if err != nil {
//		return err
//	}
//	if err := srv.Start(ctx, extractor.Write, nil); err != nil {
//		return err
//	}
//	defer srv.Stop(context.Background())
package tcp
