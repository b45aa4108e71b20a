package cody

// Resolver is the pluggable policy object the Server dispatches decoded
// requests to. Each method is handed the Server it should push its response
// onto (via the Server's response helpers -- ConnectResponse,
// ModuleRepoResponse, ModuleCMIResponse, IncludeTranslateResponse,
// OKResponse, ErrorResponse); a Resolver method that returns without calling
// exactly one of them violates the Server's one-response-per-request
// invariant.
//
// Modeled as a small capability interface rather than a class hierarchy:
// the default policy (DefaultResolver) is one implementation, and the
// "pivot" mechanism (ConnectRequest returning a different Resolver to
// handle the rest of the session) is an ordinary return value, not a
// subtype relation.
type Resolver interface {
	// ConnectRequest handles a HELLO. It must push exactly one response
	// (ConnectResponse or ErrorResponse) and returns the Resolver that
	// should handle all subsequent requests in this session -- typically
	// itself, but a resolver may pivot to a different one. Returning nil
	// terminates the session.
	ConnectRequest(s *Server, version int, agent, ident string) Resolver

	// ModuleRepoRequest handles MODULE-REPO. It must push exactly one
	// response (ModuleRepoResponse or ErrorResponse).
	ModuleRepoRequest(s *Server)

	// ModuleExportRequest handles MODULE-EXPORT for module. It must push
	// exactly one response (ModuleCMIResponse or ErrorResponse).
	ModuleExportRequest(s *Server, module string)

	// ModuleImportRequest handles MODULE-IMPORT for module. It must push
	// exactly one response (ModuleCMIResponse or ErrorResponse).
	ModuleImportRequest(s *Server, module string)

	// ModuleCompiledRequest handles MODULE-COMPILED for module. It must
	// push exactly one response (OKResponse or ErrorResponse).
	ModuleCompiledRequest(s *Server, module string)

	// IncludeTranslateRequest handles INCLUDE-TRANSLATE for include. It
	// must push exactly one response (ModuleCMIResponse,
	// IncludeTranslateResponse, or ErrorResponse).
	IncludeTranslateRequest(s *Server, include string)
}
