// Package sqlite implements shop storage on SQLite.
//
// One Store serves every collection: invite snapshots, join attributions,
// accounts, reputation tiers and logs, the economy ledger, guild settings,
// the catalog and tickets. Atomicity relies on single-statement conditional
// updates so concurrent gateway events never double-apply a mutation.
package sqlite
