// Package actor holds one single-writer unit of state per persistent
// component, addressed by (message id, identifier).
//
// Every read and write for an address is funneled through that address's
// mailbox and executed by one goroutine, so a save can never interleave with
// another operation on the same component. Different addresses proceed in
// parallel.
//
// # Lifecycle
//
//	Uninitialized ──restore from Storage──────────────▶ Ready
//	Uninitialized ──Hydrate──▶ Hydrating ──success──▶ Ready
//	                               └──failure──▶ Uninitialized
//
// Hydration runs inside the actor loop, so concurrent callers arriving while
// it runs wait in the mailbox and observe the single result. Ready is
// terminal until the actor is evicted (idle timeout or Registry.Evict); the
// next access starts a fresh actor that restores from Storage.
//
// # Surfaces
//
// Registry implements Service in process. Handler exposes the same
// operations over HTTP (GET load-or-404, POST hydrate) and Client consumes
// them, so the router can address actors hosted by another process.
package actor
