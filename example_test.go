package solvent_test

import (
	"context"
	"fmt"

	"github.com/solventdi/solvent"
)

func Example() {
	greeting := solvent.NewKey("Greeting")
	recipient := solvent.NewKey("Recipient")
	message := solvent.NewKey("Message")

	engine := solvent.New()
	defer engine.Close()

	_ = engine.Use(
		solvent.Static(greeting, "Hello"),
		solvent.Static(recipient, "Alice"),
		solvent.Value(message, func(d solvent.Deps) (string, error) {
			return solvent.Get[string](d, greeting) + ", " + solvent.Get[string](d, recipient) + "!", nil
		}, greeting, recipient),
	)

	site := solvent.NewSite(func(d solvent.Deps) (string, error) {
		return solvent.Get[string](d, message), nil
	}, message)

	scope := engine.NewScope()
	defer scope.Close()

	msg, _ := site.Call(scope)
	fmt.Println(msg)
	// Output: Hello, Alice!
}

func ExampleSite_Call_override() {
	userID := solvent.NewKey("UserID")
	userName := solvent.NewKey("UserName")

	engine := solvent.New()
	defer engine.Close()

	_ = engine.Use(
		solvent.Static(userID, 1),
		solvent.Value(userName, func(d solvent.Deps) (string, error) {
			return fmt.Sprintf("user-%d", solvent.Get[int](d, userID)), nil
		}, userID),
	)

	site := solvent.NewSite(func(d solvent.Deps) (string, error) {
		return solvent.Get[string](d, userName), nil
	}, userName)

	scope := engine.NewScope()
	defer scope.Close()

	name, _ := site.Call(scope)
	fmt.Println(name)

	name, _ = site.Call(scope, solvent.With(userID, 2))
	fmt.Println(name)
	// Output:
	// user-1
	// user-2
}

func ExampleResource() {
	conn := solvent.NewKey("Conn")

	engine := solvent.New()
	defer engine.Close()

	_ = engine.Use(solvent.Resource(conn, func(solvent.Deps) (string, solvent.ReleaseFunc, error) {
		fmt.Println("open")
		return "conn", func(context.Context) error {
			fmt.Println("close")
			return nil
		}, nil
	}))

	site := solvent.NewSite(func(d solvent.Deps) (string, error) {
		fmt.Println("using", solvent.Get[string](d, conn))
		return "", nil
	}, conn)

	scope := engine.NewScope()
	defer scope.Close()

	_, _ = site.Call(scope)
	// Output:
	// open
	// using conn
	// close
}

func ExampleEngine_Activate() {
	recipient := solvent.NewKey("Recipient")

	engine := solvent.New()
	defer engine.Close()
	_ = engine.Use(solvent.Static(recipient, "Alice"))

	site := solvent.NewSite(func(d solvent.Deps) (string, error) {
		return "Hello " + solvent.Get[string](d, recipient), nil
	}, recipient)

	scope := engine.NewScope()
	defer scope.Close()

	msg, _ := site.Call(scope)
	fmt.Println(msg)

	act, _ := engine.Activate(solvent.Static(recipient, "Bob"))
	msg, _ = site.Call(scope)
	fmt.Println(msg)

	act.Close()
	msg, _ = site.Call(scope)
	fmt.Println(msg)
	// Output:
	// Hello Alice
	// Hello Bob
	// Hello Alice
}

func ExampleUnionKey() {
	apiKey := solvent.NewKey("APIKey")
	password := solvent.NewKey("Password")
	credential := solvent.UnionKey("Credential", apiKey, password)

	engine := solvent.New()
	defer engine.Close()
	_ = engine.Use(solvent.Static(password, "hunter2"))

	site := solvent.NewSite(func(d solvent.Deps) (string, error) {
		return solvent.Get[string](d, credential), nil
	}, credential)

	scope := engine.NewScope()
	defer scope.Close()

	cred, _ := site.Call(scope)
	fmt.Println(cred)
	// Output: hunter2
}
