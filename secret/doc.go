// Package secret resolves secret references in configuration values.
//
// A value may contain ${VAR} expansions, which must name variables that are
// set, and secret references of the form
//
//	secretref:<provider>:<ref>
//
// either as the whole value or inline ("Bearer secretref:env:API_TOKEN").
// The env provider reads environment variables; the file provider reads
// files below a base directory, as mounted by container orchestrators.
package secret
