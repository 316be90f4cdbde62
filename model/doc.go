// Package model defines the stable boundary types shared by the CLI, the HTTP
// API and the gRPC service, plus the Service that produces them.
//
// Verification results themselves come from the chain and bundle packages;
// these structs are projections of them intended for direct JSON encoding.
package model
