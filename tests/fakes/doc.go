// Package fakes provides test doubles for vaultctl interfaces.
//
// Fakes are hand-written rather than generated so tests control behaviour
// precisely through func fields and inspect recorded calls afterwards.
//
// Usage:
//
//	store := fakes.NewFakeStore()
//	store.RenewSelfFunc = func(ctx context.Context, inc time.Duration) (*vault.AuthResult, error) {
//	    return nil, vcerrors.ErrNotRenewable
//	}
//	a := auth.New(store, fakes.NewMemoryCache(cred), opts, logger)
//	// Exercise a, then inspect store.Calls()
package fakes
