/*
Package dsl provides a Go DSL for programmatically constructing graph documents.

It allows developers to define automations using a fluent builder instead of
hand-writing the JSON document the editor produces. This is useful for
generated graphs, tests and examples.

Example usage:

	b := dsl.New()
	b.Add("night").TimeWindow("20:00", "06:00").
		To("active", "porch", "trigger")
	b.Add("porch").Actuator("light.porch").Label("Porch light")

	doc, err := b.Build()
	if err != nil {
		return err
	}
	// ... pass doc to Service.Load or Service.PutGraph
*/
package dsl
