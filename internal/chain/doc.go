// Package chain hosts contract code written in Go on top of a go-ethereum
// StateDB. It provides the message-call model the router depends on: value
// transfers, nested calls, per-frame journal snapshots and revert reasons.
package chain
