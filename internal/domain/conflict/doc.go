// Package conflict implements detection and resolution of inventory
// disagreements between sales channels. Detection compares per-channel
// observations for a product against a single absolute discrepancy
// threshold; resolution reduces the observation set to one authoritative
// value through a deterministic, pluggable strategy.
package conflict
