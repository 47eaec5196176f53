// Package twapstore stores Twaps (code snippets keyed by URL) in a single
// JSON file.
//
// The file is a pretty-printed JSON array:
//
//	[
//	  {
//	    "source": "print(1)\\nprint(2)",
//	    "url": "http://x/1",
//	    "id": "a"
//	  }
//	]
//
// Every operation reads the file from disk. There is no in-memory cache.
// Upsert removes all records with the same url, appends the new record
// and atomically rewrites the whole file.
//
// # Thread Safety
//
// A Store is safe for concurrent use. Writers are serialized with a mutex
// and with an advisory lock on "<path>.lock" so that separate processes
// (or separate Store values) sharing one file don't lose updates.
package twapstore
