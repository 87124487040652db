// Package pubsub is the group fan-out transport under the broadcast router.
//
// A Bus publishes a Message to a subject and calls every Handler subscribed
// to that subject. Message.Except names one connection the router must skip;
// the bus itself delivers to every subscriber and leaves filtering to the
// handler.
//
// MemoryBus is the default and delivers synchronously inside Publish.
// NATSBus uses core NATS subjects, carrying Except in the Relay-Except header.
package pubsub
