package config

import "fmt"

// CollisionError reports two processors declaring the same option key in
// the same namespace. Two processors cannot safely share a flag, so this
// is fatal at startup.
type CollisionError struct {
	Namespace string
	Option    string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("config: option %q already declared in namespace %q", e.Option, e.Namespace)
}
