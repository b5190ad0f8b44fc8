package demo

import (
	"context"
	"regexp"

	"github.com/edoloughlin/nasc/pkg/engine"
	"github.com/edoloughlin/nasc/pkg/processor"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserHandler manages one user profile. Invalid email submissions set an
// inline error field instead of failing the event, so the client can render
// the message next to the input.
func UserHandler() *processor.Handler {
	return &processor.Handler{
		Mount:  userMount,
		Events: map[string]processor.EventFunc{
			"save_profile": userSaveProfile,
		},
	}
}

func userMount(_ context.Context, params map[string]any) (engine.State, error) {
	id, _ := params["userId"].(string)
	if id == "" {
		id, _ = params["userid"].(string)
	}
	if id == "" {
		id = "currentUser"
	}
	return engine.State{"id": id, "name": "Guest", "email": ""}, nil
}

func userSaveProfile(_ context.Context, payload map[string]any, current engine.State) (engine.State, error) {
	if name, ok := payload["name"].(string); ok {
		current["name"] = name
	}
	if email, ok := payload["email"].(string); ok {
		if emailPattern.MatchString(email) {
			current["email"] = email
			current["error_email"] = ""
		} else {
			current["error_email"] = "Please enter a valid email address."
		}
	}
	return current, nil
}
