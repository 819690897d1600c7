// Package gist replicates the local dataset to a single JSON file kept in a
// GitHub Gist.
//
// The remote document is the shared copy every device converges on. A push
// replaces the whole file with the current local Dataset; a pull downloads
// it. There is no merging: the last successful push wins.
//
// # Wire format
//
// Push sends
//
//	PATCH {api}/gists/{documentId}
//	Authorization: Bearer {credential}
//
//	{"description": "...", "files": {"asistencias.json": {"content": "<dataset JSON>"}}}
//
// and Pull reads files["asistencias.json"].content from GET on the same URL.
// When GitHub truncates a large file the client follows raw_url.
//
// # Retries
//
// Each request gets at most five attempts. After failed attempt i the client
// waits 2^i seconds (1, 2, 4, 8, 16) before trying again or giving up. A 404
// is never retried: the document does not exist and waiting will not create
// it.
//
// # Example
//
//	client := gist.New(st, gist.Config{})
//	res, err := client.Push(ctx)
//	if errors.Is(err, schema.ErrRemoteNotFound) {
//	    // ask the user to fix the document id
//	}
package gist
