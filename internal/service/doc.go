// Package service turns a manifest into a running Crossroads.
//
// Every manifest interface is registered with ObjectState as its payload;
// every manifest object is inserted with its declared interfaces and the
// initial values of their properties. Method behaviour comes from the
// manifest's impl field.
package service
