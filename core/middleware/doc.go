// Package middleware contains HTTP middleware for the control API.
//
// # Components
//
//   - auth: API key validation protecting every command endpoint.
//   - rayid: a unique request id (RayID) for every incoming request,
//     stored in the context and echoed in the response headers.
package middleware
