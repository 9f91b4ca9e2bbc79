// Package server exposes pivot synchronizers over a JSON HTTP API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so path values are available
// through [http.Request.PathValue] inside handlers.
//
// # Pivot Handler
//
// [PivotHandler] serves one route per mutation:
//
//	GET  /owners/{ownerType}/{owner}/{relation}        → related rows
//	POST /owners/{ownerType}/{owner}/{relation}/{op}   → attach, detach, sync, toggle, update
//
// Mutation bodies carry the ids in any accepted input shape:
//
//	{"ids": [1, 2]}
//	{"ids": {"1": {"role": "admin"}, "2": null}, "detaching": false}
//	{"ids": 4, "attributes": {"liked": true}, "touch": false}
//
// Object keys keep their request order. Every request runs through the same synchronizer as the CLI,
// so listeners registered on the bus gate HTTP mutations too. A vetoed mutation answers 200 with
// "cancelled": true.
package server
