// Package gqlmap holds the GraphQL-over-HTTP wire types shared by the
// executor, the inference engine and the security checks. The interesting
// machinery lives in the subpackages:
//
//	httpgql   sends operations and normalizes what came back
//	schema    the accumulated type graph and its serializations
//	infer     blind schema reconstruction when introspection is off
//	scan      the security check catalog
//	discovery endpoint path probing
//	export    collection exporters (curl, Bruno, Postman, InQL)
package gqlmap
