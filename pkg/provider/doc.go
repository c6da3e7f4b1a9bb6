// Package provider reads the live state of an organization and writes the
// changes the applier asks for.
//
// Three back ends serve a single tree: the REST API for most resources, the
// graph API for branch protection rules and a browser session for settings
// only the web interface exposes. Every network call of every organization
// goes through one shared Pool, and REST reads are revalidated against a
// shared ETag Cache.
package provider
