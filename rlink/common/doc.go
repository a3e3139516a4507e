// Package common contains the shared building blocks of the rlink
// communication layer: node identities and roles, the configuration
// structs consumed by every other package, the error taxonomy of the
// transport protocol and the logging setup.
//
// The package is imported by all other rlink packages and must itself
// stay free of rlink imports.
package common
