package authorization

import "context"

// Service decides whether an actor may perform an action on a project.
// Actors are "system" or "user:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, projectID string, object string, action string) error
}
