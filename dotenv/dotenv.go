// Package dotenv binds configuration from .env files and the process
// environment to dependency keys.
//
// Two styles are supported: Seeds reads a .env file once and turns chosen
// variables into scope seeds, while Provider defers the read to resolution
// time so each scope sees the environment as it is then.
package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/solventdi/solvent"
)

// Binding maps one environment variable to a dependency key.
type Binding struct {
	Key *solvent.Key
	Var string
	// Default is used when the variable is absent. An absent variable
	// without a default is an error.
	Default  string
	Optional bool
}

// Bind builds a required binding.
func Bind(key *solvent.Key, envVar string) Binding {
	return Binding{Key: key, Var: envVar}
}

// BindDefault builds a binding with a fallback value.
func BindDefault(key *solvent.Key, envVar, def string) Binding {
	return Binding{Key: key, Var: envVar, Default: def, Optional: true}
}

// Seeds reads the given .env files (or .env in the working directory when
// none are named), overlays the process environment, and returns one seed
// per binding. Process environment wins over file values.
func Seeds(bindings []Binding, files ...string) ([]solvent.Seed, error) {
	fileVals, err := readFiles(files)
	if err != nil {
		return nil, err
	}

	seeds := make([]solvent.Seed, 0, len(bindings))
	for _, b := range bindings {
		v, err := resolve(b, fileVals)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, solvent.WithValue(b.Key, v))
	}
	return seeds, nil
}

// Provider returns a provider resolving one binding at injection time.
// Useful when the variable may change between scopes, such as in tests
// that mutate the environment.
func Provider(b Binding, files ...string) *solvent.Provider {
	return solvent.Value(b.Key, func(solvent.Deps) (string, error) {
		fileVals, err := readFiles(files)
		if err != nil {
			return "", err
		}
		return resolve(b, fileVals)
	})
}

func readFiles(files []string) (map[string]string, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return map[string]string{}, nil
		}
		files = []string{".env"}
	}
	vals, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("reading env files: %w", err)
	}
	return vals, nil
}

func resolve(b Binding, fileVals map[string]string) (string, error) {
	if v, ok := os.LookupEnv(b.Var); ok {
		return v, nil
	}
	if v, ok := fileVals[b.Var]; ok {
		return v, nil
	}
	if b.Optional {
		return b.Default, nil
	}
	return "", fmt.Errorf("environment variable %s is not set and has no default", b.Var)
}
