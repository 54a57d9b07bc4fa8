// Package api defines the domain types shared between the execution
// engine, the incident lifecycle, the store, and the HTTP surface: flow
// and step definitions, run results, incidents, metrics, and the domain
// events published while flows execute
package api
