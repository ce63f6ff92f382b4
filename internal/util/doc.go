// Package util provides shared error types, context helpers, and path
// normalization used across the routing core.
package util
