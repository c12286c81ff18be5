// Package storage provides the document persistence layer behind the job store.
//
// Documents are JSON objects grouped in named collections. Two drivers exist:
// flat JSON files (one array per collection) and SQLite.
package storage
