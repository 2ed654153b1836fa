// Package solvent is a dependency injection engine built around explicit
// keys instead of reflection. Providers declare which key they produce and
// which keys they require; injection sites declare which keys they
// consume; the engine plans a cycle-free, dependency-ordered execution for
// each call and caches the plan until the registry changes.
//
// Quick start:
//
//	var (
//		Greeting  = solvent.NewKey("Greeting")
//		Recipient = solvent.NewKey("Recipient")
//		Message   = solvent.NewKey("Message")
//	)
//
//	engine := solvent.New()
//	engine.Use(
//		solvent.Static(Greeting, "Hello"),
//		solvent.Static(Recipient, "World"),
//		solvent.Value(Message, func(d solvent.Deps) (string, error) {
//			return solvent.Get[string](d, Greeting) + ", " + solvent.Get[string](d, Recipient) + "!", nil
//		}, Greeting, Recipient),
//	)
//
//	site := solvent.NewSite(func(d solvent.Deps) (string, error) {
//		return solvent.Get[string](d, Message), nil
//	}, Message)
//
//	scope := engine.NewScope()
//	defer scope.Close()
//	msg, err := site.Call(scope)
//
// Values resolved during a call are released when the call returns, in
// reverse acquisition order, unless the site is Shared, in which case they
// are promoted into the caller's scope and live until it closes. Scopes
// nest; a child frame shadows its parent for the keys it holds.
//
// Synchronous sites only use synchronous providers. Sites declared with
// NewAsyncSite run under a context, may use providers of any mode, and
// prefer an asynchronous provider when a key has both.
package solvent
