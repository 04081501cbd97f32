// Package presale binds the presale and ERC-20 token contracts, performs
// fixed-point amount conversion between user-facing decimal strings and
// 18-decimal on-chain integers, and refreshes the whole chain snapshot
// with parallel read calls committed atomically to the session state.
package presale
