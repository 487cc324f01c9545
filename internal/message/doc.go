// Package message defines the channel payload types carried through the
// delivery queue. Each inbound message is wrapped in an Envelope, a tagged
// union discriminated by platform, so the queue itself never inspects
// platform-specific shape.
package message
