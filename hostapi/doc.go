/*
Package hostapi describes the scripting API a host application exposes to
remote clients.

A Module is built once at startup by registering Go functions, struct types
and enum types:

	api := hostapi.NewModule("alias_api", hostapi.Info{Version: "1.0"})
	api.AddFunction("create_layer", CreateLayer, "name")
	layer, _ := api.AddClass("Layer", &Layer{})
	api.AddEnum("AlMessageType", map[string]interface{}{
		"DagChanged": DagChanged,
	})

Struct types become classes: exported fields are attributes and exported
methods of the pointer type are methods, both named in snake_case unless an
`alias:"name"` tag says otherwise. Fields tagged `alias:"-"` or `json:"-"` are
not exposed. Instances of a class are always pointers to the registered
struct type.

Registration must finish before the module is served. Lookups are safe for
concurrent use afterwards, but values reached through the module are only
safe to use from the host's execution context.
*/
package hostapi
