package rpc

import "github.com/cuemby/warren/pkg/catalogerr"

// notFound builds the ObjectNotFound error every lookup-by-id handler
// returns when the manager's in-memory map has no entry.
func notFound(kind, id string) error {
	return catalogerr.New(catalogerr.ObjectNotFound, "%s %s not found", kind, id)
}
