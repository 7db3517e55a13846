// Package framing recovers top-level JSON objects from an unframed byte
// stream, such as the chunks delivered by package input/tcp.
//
// A Scanner keeps a fixed-size byte ring and a scan state (scan position,
// frame start, brace depth, in-string and escape flags) that survives
// across writes. Braces inside string literals are ignored. Bytes before the
// first '{' are discarded as noise, as is a buffer holding no '{' at all,
// which makes newline-delimited streams work unchanged.
//
// Writing past the ring capacity drops the oldest bytes and resets the scan
// state, so a frame whose start was dropped is never reassembled.
//
// # Resynchronisation
//
// A partial frame that survives more than ResyncAfterPasses scan passes, or
// that was open when the ring overflowed, is abandoned if a later '{' is
// followed within Lookahead bytes by the quoted discriminator key. This is
// a heuristic. A nested object that begins with the discriminator key is a
// false positive, and a key placed past the window is missed.
//
// # Extractor
//
// Extractor[T] runs one parser goroutine. Each complete frame is validated
// (root object, numeric discriminator), decoded into T and passed to the
// handler. Rejected frames are reported to the error policy as invalid
// errors and processing continues by default.
package framing
