// Package channel contains the sales-channel bounded context: the Channel
// aggregate, the Connector port implemented per channel type in the
// infrastructure layer, the product mapping between local products and
// channel-native identifiers, and the Registry port through which every
// outbound channel call is rate limited, retried and circuit broken.
package channel
