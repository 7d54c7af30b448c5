// Package middleware provides GraphStore decorators.
package middleware

import "github.com/aretw0/autotron/pkg/ports"

// Middleware allows wrapping a GraphStore to add behavior.
type Middleware func(ports.GraphStore) ports.GraphStore
