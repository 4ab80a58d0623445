// Package web embeds the static client shell served at "/" and
// "/session/{id}". The real terminal frontend is out of scope for this
// repo (per spec Non-goals); this is a stub sufficient to satisfy the
// HTTP contract.
package web

import "embed"

//go:embed static
var Assets embed.FS
