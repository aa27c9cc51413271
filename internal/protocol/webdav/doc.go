// Package webdav implements the WebDAV request state machine.
//
// Every request goes through the same steps: the repository is selected by
// host, its authentication gate runs, and the method is dispatched to a
// verb handler. Verb handlers never write to the response directly; they
// return a Result carrying the status and an optional body, and terminal
// statuses reached mid-handler are returned with halt.
//
// Supported verbs: OPTIONS, GET, HEAD, PUT, POST, DELETE, MKCOL, MOVE,
// PROPFIND, LOCK and UNLOCK. LOCK issues tokens without holding locks.
package webdav
