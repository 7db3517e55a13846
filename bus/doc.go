// Package bus provides reconnecting topic channels over a pluggable
// message transport.
//
// A Subscriber connects to one endpoint, keeps only messages whose topic
// equals its own exactly, and hands each payload to a handler on a separate
// dispatch goroutine. A Publisher binds an endpoint and sends queued payloads
// under one topic. Both sit on a bounded queue that drops the oldest entry
// when full, and both reconnect after any I/O fault with a backoff countdown.
//
// Transports implement Driver and are registered per endpoint scheme:
//
//	zmqbus.Register()  // tcp://, ipc://, inproc://
//	natsbus.Register() // nats://
//
//	sub, err := bus.NewSubscriber(bus.SubscriberConfig{
//		Endpoint:      "tcp://10.0.0.5:5556",
//		Topic:         "tag_scan",
//		QueueCapacity: bus.DefaultQueueCapacity,
//	}, handle, bus.WithLogger(logger), bus.WithMetrics(registry))
//
// # Errors
//
// Every non-fatal error is logged with the channel name and then offered to
// the ErrorPolicy. Returning false stops the channel. Without a policy the
// channel uses the WithUnhandled decision, Continue by default. A policy
// that panics is treated as Stop.
//
// # Stopping
//
// Handlers and policies receive a context bound to the loop that called
// them. Passing that context to Stop skips joining the calling loop, so a
// handler may stop its own channel.
package bus
