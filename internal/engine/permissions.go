package engine

import "context"

// PermissionKind names a device resource the user must grant. Window
// overlay grants belong to the presentation layer, not the engine.
type PermissionKind string

const (
	PermissionAudio PermissionKind = "audio"
	PermissionVideo PermissionKind = "video"
)

// Permissions asks the user for access. The engine blocks on Request before
// acquiring the matching resource.
type Permissions interface {
	Request(ctx context.Context, kind PermissionKind) (bool, error)
}

// PermissionFunc adapts a function to Permissions.
type PermissionFunc func(ctx context.Context, kind PermissionKind) (bool, error)

func (f PermissionFunc) Request(ctx context.Context, kind PermissionKind) (bool, error) {
	return f(ctx, kind)
}

// GrantAll approves every request.
var GrantAll = PermissionFunc(func(context.Context, PermissionKind) (bool, error) { return true, nil })
