// Package buffer provides the bounded containers used between the I/O
// goroutines and the dispatch goroutines of every channel.
//
// # Queues
//
// CircularBuffer is a generic bounded FIFO. With the default DropOldest
// policy Write never blocks: a full buffer evicts its oldest item, so the
// retained items are always the last N written, in order. ReadContext is
// the blocking pop used by dispatch loops; it returns when an item arrives,
// when the buffer is closed, or when ctx is done.
//
//	queue, err := buffer.NewCircularBuffer[[]byte](1000,
//		buffer.WithMetrics[[]byte](registry, "tag_scan"),
//	)
//	if err != nil {
//		return err
//	}
//
//	_ = queue.Write(payload)
//
//	item, err := queue.ReadContext(ctx)
//	if errors.Is(err, errs.ErrAlreadyStopped) {
//		return
//	}
//
// Statistics are always collected and available from Stats. Prometheus
// metrics are optional and carry a channel label.
//
// # Byte rings
//
// ByteRing is the raw byte store behind the frame scanner. It has no lock of
// its own; the owner serialises access. Writes past capacity overwrite the
// oldest bytes and report how many were lost so the scanner can resynchronise.
package buffer
