// Package http implements the HTTP endpoints of the clinic API.
//
// Handlers are thin: they decode the request, call a store or service and
// return a structured Result. They never write to the ResponseWriter
// themselves.
//
// # Request Flow
//
//	Router → Authenticate → RequireLicense → RequireModule/RequireRole → Adapter → Endpoint
//	                                                                       ↓
//	Response ← Adapter renders Result ← Endpoint returns (*Result, error) ←┘
//	    ↓
//	audit.Recorder (2xx results of audited routes, asynchronous)
//
// # Routes
//
// Every endpoint is declared as a Route. Mount groups routes by Access so
// that authentication and the license check run once per request, then
// adds the module and role gates each route asks for. Clinic data modules
// are not written by hand: RecordRoutes expands the ResourceBindings table
// into list, get, create, update and delete routes.
//
// # Errors
//
// An endpoint returns errors instead of rendering them. The Adapter passes
// them to the shared ErrorHandler, which renders RFC 7807 problem details:
//
//	{
//	    "type": "/errors/license/module-not-licensed",
//	    "title": "Forbidden",
//	    "status": 403,
//	    "detail": "This module is not included in the clinic license",
//	    "instance": "/api/billing",
//	    "error_code": "MODULE_NOT_LICENSED",
//	    "details": {"module": "billing"}
//	}
//
// # Testing
//
// Handlers are tested through a real chi router with in-memory stores:
//
//	- Issue a token with auth.TokenIssuer
//	- Serve the request with httptest
//	- Assert on the status, the problem document and the audit store
package http
