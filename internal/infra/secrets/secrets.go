// Package secrets resolves credential references from provider configuration.
// A reference is one of:
//
//	env:NAME       value of the environment variable NAME
//	file:PATH      trimmed contents of the file at PATH
//	anything else  taken as a literal credential
//
// References are stored verbatim in configuration and resolved only at the
// moment a provider instance is constructed.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"parley/internal/domain"
)

// Resolve turns a credential reference into a credential string. An empty
// reference resolves to an empty credential (providers that need no key, e.g.
// a local ollama daemon).
func Resolve(ref string) (string, error) {
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			return "", domain.NewDomainError("secrets.Resolve", domain.ErrSecretResolve,
				fmt.Sprintf("environment variable %s is not set", name))
		}
		return val, nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", domain.NewDomainError("secrets.Resolve", domain.ErrSecretResolve, err.Error())
		}
		val := strings.TrimSpace(string(data))
		if val == "" {
			return "", domain.NewDomainError("secrets.Resolve", domain.ErrSecretResolve,
				fmt.Sprintf("credential file %s is empty", path))
		}
		return val, nil
	default:
		return ref, nil
	}
}
