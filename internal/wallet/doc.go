// Package wallet abstracts the external wallet provider behind a small
// interface covering account authorization, chain switching, chain
// registration, and account/chain change events. It ships a local
// private-key implementation backed by go-ethereum RPC clients, and a
// connector that drives the full session lifecycle against a required
// target chain.
package wallet
