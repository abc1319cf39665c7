// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package node

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnresolvedReference is matched by UnresolvedReferenceError.
var ErrUnresolvedReference = errors.New("unresolved reference")

// UnresolvedReferenceError is returned when an include names a fragment that
// does not exist at render time.
type UnresolvedReferenceError struct {
	Ref string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("cannot include %q: no such sql fragment", e.Ref)
}

// Is allows errors.Is(err, ErrUnresolvedReference).
func (e *UnresolvedReferenceError) Is(target error) bool {
	return target == ErrUnresolvedReference
}
