// Package sensorfusion is the transport core of a forklift sensor-fusion
// controller.
//
// Sensor drivers publish positional msgpack records on a pub/sub bus; a
// handheld tablet streams JSON objects over raw TCP with no framing. The
// controller keeps the latest value from every input, runs a decision step
// on a fixed period and publishes actuator commands on the same bus.
//
// # Layers
//
//	pkg/buffer     bounded drop-oldest queue and byte ring
//	bus            reconnecting byte subscriber and publisher over a pluggable Driver
//	bus/zmqbus     ZeroMQ PUB/SUB driver (topic frame + payload frame)
//	bus/natsbus    NATS driver
//	codec          typed subscriber and publisher over a Codec[T]
//	input/tcp      single-client TCP chunk server with preemption
//	framing        brace-counting JSON frame extractor with resynchronisation
//	fusion         latest-value board and periodic decision loop
//	config         layered JSON/YAML configuration
//	health         channel health probes served at /healthz
//	cmd/fusiond    the controller process
//	cmd/tabletsim  tablet traffic generator for manual testing
//
// # Error handling
//
// Channels never stop on their own for a non-fatal error. Every fault is
// logged, classified by package errors and offered to an ErrorPolicy, whose
// answer decides whether the channel continues. A policy left unset falls
// back to a per-layer default.
package sensorfusion
