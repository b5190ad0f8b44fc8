package demo

import (
	"github.com/edoloughlin/nasc/pkg/processor"
	"github.com/edoloughlin/nasc/pkg/schema"
)

// Schemas returns the demo app's schema provider. TodoList references
// TodoItem through its items array, so clients receive both documents on
// the first TodoList mount.
func Schemas() schema.StaticProvider {
	return schema.StaticProvider{
		"TodoList": {
			Type: "object",
			Properties: map[string]*schema.Property{
				"id": {Type: "string"},
				"items": {
					Type:  "array",
					Items: &schema.Property{Ref: schema.DefsPrefix + "TodoItem"},
				},
			},
		},
		"TodoItem": {
			Type: "object",
			Properties: map[string]*schema.Property{
				"id":        {Type: "string"},
				"title":     {Type: "string"},
				"completed": {Type: "boolean"},
			},
		},
		"User": {
			Type: "object",
			Properties: map[string]*schema.Property{
				"id":          {Type: "string"},
				"name":        {Type: "string"},
				"email":       {Type: "string"},
				"error_email": {Type: "string"},
			},
		},
	}
}

// Registry returns a handler registry with the demo handlers installed.
func Registry() *processor.Registry {
	r := processor.NewRegistry()
	r.MustRegister("TodoList", TodoListHandler())
	r.MustRegister("User", UserHandler())
	return r
}
