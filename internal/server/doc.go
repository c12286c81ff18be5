// Package server is the operator HTTP API over the job store and the
// scheduler: job CRUD, status, forced reconciliation and schedule previews.
//
// Edits made through the API trigger an immediate reconciliation pass. The
// API has no authentication and is meant to listen on loopback.
package server
