// Package mocks provides test doubles for ports interfaces.
//
// These mocks are simple, thread-safe, in-memory implementations
// suitable for unit testing. Each mock provides:
//
//   - Default behavior matching the PostgreSQL adapter's constraints
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting and inspecting state directly
//   - Reset methods for test isolation
//
// # Usage Example
//
//	func TestReconcile(t *testing.T) {
//		store := mocks.NewStore()
//		store.PutBook(domain.Book{Fingerprint: "abc", Title: "Existing"})
//
//		r := reconcile.New(store, &logger)
//		// ... exercise the reconciler
//	}
//
// # Available Mocks
//
//   - Store: implements ports.Store
//   - Locker: implements ports.RunLocker
//   - Reporter: implements ports.Reporter
package mocks
