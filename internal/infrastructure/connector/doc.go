// Package connector implements the channel.Connector port for each
// supported sales channel. Every adapter translates the channel's native
// inventory API into the domain's push/pull operations and verifies the
// channel's webhook signatures. Adapters are stateless; credentials are
// resolved per call so one adapter instance serves every store.
package connector
