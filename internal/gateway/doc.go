// Package gateway implements the typed HTTP client for the sandbox
// file and environment API.
//
// All operations are parameterized by sandbox id and resolve to either
// a value or a taxonomy error (package errs); the gateway never
// retries and never holds the credential. Auth injection lives in
// package transport so a new endpoint cannot ship an unauthenticated
// call.
//
// Endpoints consumed:
//   - GET    /sandboxes/{id}/files?path=          list immediate children
//   - POST   /sandboxes/{id}/files                multipart upload
//   - GET    /sandboxes/{id}/files/{path}         binary download
//   - DELETE /sandboxes/{id}/files/{path}         delete
//   - POST   /sandboxes/{id}/folders              create folder
//   - PUT    /sandboxes/{id}/files/{path}         rename
//   - GET    /sandboxes/{id}/info                 usage aggregate
//   - GET    /sandboxes/{id}/env                  environment variables
//   - POST   /sandboxes/{id}/env                  persist variables
package gateway
