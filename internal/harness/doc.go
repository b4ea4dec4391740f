// Package harness runs sync scenarios: scripted operations by one or more
// clients, each with its own local store, optionally sharing a remote.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: two_clients
//	description: "A document added by alice reaches bob"
//	clients: [alice, bob]
//	remote: true
//	flow:
//	  - client: alice
//	    op: add
//	    id: shopping
//	    data: { title: eggs }
//	  - client: alice
//	    op: upload
//	  - client: bob
//	    op: await
//	    id: shopping
//	  - client: bob
//	    op: edit
//	    id: shopping
//	    data: { title: milk }
//	assertions:
//	  - type: unuploaded
//	    client: bob
//	    ids: [shopping]
//	  - type: document
//	    client: alice
//	    id: shopping
//	    expect: { title: eggs }
//
// # Operations
//
//   - add: AddItem, or AddItemWithID when id is set
//   - edit: EditItem merging data into id
//   - delete: DeleteItem; expect.mode checks soft/hard
//   - set_single: SetSingle with data (needs singleton_id)
//   - upload: Upload
//   - restart: Deinitialize and re-open the client's store
//   - await: wait until id has been pulled into the client's store
//
// # Assertion Types
//
//   - unuploaded: the client's unuploaded ids, sorted
//   - data: the ids in the client's projection, in projection order
//   - document: a stored document's state (live, deleted, absent) and a
//     subset of its flattened fields
//   - trace_count: number of successful steps with op (and client, when set)
//
// # Deterministic Testing
//
// Every client gets a client id equal to its name and ids "<name>-0001",
// "<name>-0002", ... All clients share one step clock. After each step the
// harness settles the client's local watcher, so the recorded unuploaded
// set is exact and traces compare byte for byte against golden files.
package harness
