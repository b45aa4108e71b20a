package cody

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultResolver is the deterministic, ship-with-the-library Resolver:
// it maps module names and header paths to CMI filenames under a
// configured repository directory, and answers INCLUDE-TRANSLATE by
// statting that repository. It carries no other mutable state.
type DefaultResolver struct {
	// RepoDir is the module repository directory reported by
	// MODULE-REPO and probed by INCLUDE-TRANSLATE. Defaults to
	// DefaultRepository when empty.
	RepoDir string
	// CMISuffix is the filename suffix (without the dot) appended to
	// every generated CMI name. Defaults to DefaultCMISuffix when empty.
	CMISuffix string
}

// NewDefaultResolver returns a DefaultResolver configured with the
// library's defaults.
func NewDefaultResolver() *DefaultResolver {
	return &DefaultResolver{RepoDir: DefaultRepository, CMISuffix: DefaultCMISuffix}
}

func (r *DefaultResolver) repoDir() string {
	if r.RepoDir == "" {
		return DefaultRepository
	}
	return r.RepoDir
}

func (r *DefaultResolver) cmiSuffix() string {
	if r.CMISuffix == "" {
		return DefaultCMISuffix
	}
	return r.CMISuffix
}

// ConnectRequest implements Resolver. It never pivots.
func (r *DefaultResolver) ConnectRequest(s *Server, version int, agent, ident string) Resolver {
	if version > ProtocolVersion {
		s.ErrorResponse("version mismatch")
		return r
	}
	s.ConnectResponse(version, DefaultAgentIdent)
	return r
}

// ModuleRepoRequest implements Resolver.
func (r *DefaultResolver) ModuleRepoRequest(s *Server) {
	s.ModuleRepoResponse(r.repoDir())
}

// ModuleExportRequest implements Resolver.
func (r *DefaultResolver) ModuleExportRequest(s *Server, module string) {
	s.ModuleCMIResponse(r.GetCMIName(module))
}

// ModuleImportRequest implements Resolver.
func (r *DefaultResolver) ModuleImportRequest(s *Server, module string) {
	s.ModuleCMIResponse(r.GetCMIName(module))
}

// ModuleCompiledRequest implements Resolver. The default policy treats a
// compiled-module notification as a no-op.
func (r *DefaultResolver) ModuleCompiledRequest(s *Server, module string) {
	s.OKResponse()
}

// IncludeTranslateRequest implements Resolver: it treats include as an
// importable header (MODULE-CMI) when a regular file already exists at its
// canonical CMI name under the repository; otherwise the include remains
// textual (INCLUDE-TEXT).
func (r *DefaultResolver) IncludeTranslateRequest(s *Server, include string) {
	name := r.GetCMIName(include)
	full := filepath.Join(r.repoDir(), name)
	if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
		s.ModuleCMIResponse(name)
		return
	}
	s.IncludeTranslateResponse("")
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// isAbsoluteHeaderUnit reports whether name names an absolute header unit:
// it begins with a directory separator, or (Windows) with <letter>:.
//
// The upstream C++ source this protocol is modeled on has a suspected
// off-by-one in its drive-letter check; this implementation instead
// validates the intended classification directly: the first byte is an
// ASCII letter and the second is ':'.
func isAbsoluteHeaderUnit(name string) bool {
	if len(name) == 0 {
		return false
	}
	if name[0] == '/' || os.IsPathSeparator(name[0]) {
		return true
	}
	if len(name) >= 2 && isASCIILetter(name[0]) && name[1] == ':' {
		return true
	}
	return false
}

// isRelativeHeaderUnit reports whether name names a relative header unit:
// it begins with "./".
func isRelativeHeaderUnit(name string) bool {
	return strings.HasPrefix(name, "./")
}

// GetCMIName implements the canonical module-name-to-CMI-filename mapping
// of spec.md §4.3.3: absolute header units are made relative by prepending
// '.'; any header unit then has its leading '.' (marking "relative")
// replaced with ',' -- except the dot an absolute unit was just given,
// which stays literal, since it never meant "relative" to begin with; any
// "/../" traversal component inside a header unit has its ".." replaced
// with ",,"; named modules have their single ':' partition separator
// replaced with '-'. The CMI suffix is appended last.
func (r *DefaultResolver) GetCMIName(module string) string {
	var path string
	switch {
	case isAbsoluteHeaderUnit(module):
		// Made relative by prepending '.'; this dot never meant
		// "relative" so it is not subject to the dot-replace below.
		path = "." + module
		path = strings.ReplaceAll(path, "/../", "/,,/")
	case isRelativeHeaderUnit(module):
		path = "," + module[1:]
		path = strings.ReplaceAll(path, "/../", "/,,/")
	default:
		path = strings.Replace(module, ":", "-", 1)
	}
	return path + "." + r.cmiSuffix()
}
