// Package core serves table types to transports.
//
// It has no HTTP dependencies and can be used by web handlers, CLI tools,
// or tests without modification.
//
// # Catalog
//
// A [Catalog] maps keys to table types and the source of their records.
// Entries are registered in Go:
//
//	catalog.Register(core.Entry{
//	    Key:        "accounts",
//	    Group:      "demo",
//	    Definition: core.AccountsTable(store),
//	    Source:     store.Accounts,
//	})
//
// or loaded from a YAML definitions file with [Catalog.Load], which serves
// pgrel tables from a database and array tables from in-memory data.
//
// # Service
//
// [Service] opens one table instance per request from the request
// parameters, streams exports under the [ExportLimiter], and runs bulk
// actions.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - CFG001: configuration errors
//   - LKP001-LKP004: table, column, column group and bulk action lookups
//   - EXT001-EXT002: data source errors
//   - EXP001-EXP003: export errors
//   - REQ001-REQ002: cancelled and timed out requests
//   - DB004-DB008: database errors
package core
