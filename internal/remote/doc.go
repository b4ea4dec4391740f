// Package remote connects docsync to a remote document endpoint over HTTP.
//
// Client implements docstore.Database against a Server, so the replicate
// package can push to and pull from a remote exactly as it does between two
// local databases. Live change feeds use a websocket.
//
// Endpoints, relative to the server root:
//
//	GET    /                     reachability (HEAD also accepted)
//	GET    /{db}                 database info
//	GET    /{db}/_changes        one page of the change feed
//	GET    /{db}/_changes/ws     live change feed (websocket)
//	GET    /{db}/_all_docs       live documents
//	POST   /{db}/_bulk_docs      replicated writes
//	POST   /{db}/_revs_diff      missing revisions
//	GET    /{db}/_local/{id}     checkpoint read
//	PUT    /{db}/_local/{id}     checkpoint write
//	GET    /{db}/{id}            document read
//	PUT    /{db}/{id}            document write
//	DELETE /{db}/{id}?rev=       document removal
package remote
