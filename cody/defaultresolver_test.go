package cody

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetCMIName mirrors the worked examples of spec.md's CMI-naming table,
// covering named modules, partitions, and both relative and absolute header
// units (including a traversal component within a relative one).
func TestGetCMIName(t *testing.T) {
	r := NewDefaultResolver()
	cases := []struct {
		name   string
		module string
		want   string
	}{
		{"named module", "foo", "foo.cmi"},
		{"partition", "foo:bar", "foo-bar.cmi"},
		{"relative header unit", "./quux", ",/quux.cmi"},
		{"relative header unit with traversal", "./a/../b", ",/a/,,/b.cmi"},
		{"absolute header unit", "/usr/inc/x.h", "./usr/inc/x.h.cmi"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, r.GetCMIName(c.module))
		})
	}
}

func TestIsAbsoluteHeaderUnit(t *testing.T) {
	assert.True(t, isAbsoluteHeaderUnit("/usr/inc/x.h"))
	assert.True(t, isAbsoluteHeaderUnit("C:foo.h"))
	assert.False(t, isAbsoluteHeaderUnit("foo.h"))
	assert.False(t, isAbsoluteHeaderUnit("./foo.h"))
	assert.False(t, isAbsoluteHeaderUnit(""))
}

func TestIsRelativeHeaderUnit(t *testing.T) {
	assert.True(t, isRelativeHeaderUnit("./foo.h"))
	assert.False(t, isRelativeHeaderUnit("foo.h"))
	assert.False(t, isRelativeHeaderUnit("/foo.h"))
}

func TestModuleRepoRequestUsesConfiguredDir(t *testing.T) {
	r := &DefaultResolver{RepoDir: "repo.dir"}
	s := NewServer(nil, r)
	r.ModuleRepoRequest(s)
	s.Out.PrepareToWrite()
	assert.Equal(t, "MODULE-REPO repo.dir\n", string(s.Out.Bytes()))
}

func TestModuleRepoRequestDefaultsWhenUnconfigured(t *testing.T) {
	r := &DefaultResolver{}
	s := NewServer(nil, r)
	r.ModuleRepoRequest(s)
	s.Out.PrepareToWrite()
	assert.Equal(t, "MODULE-REPO "+DefaultRepository+"\n", string(s.Out.Bytes()))
}

func TestIncludeTranslateRequestFindsExistingCMI(t *testing.T) {
	dir := t.TempDir()
	r := &DefaultResolver{RepoDir: dir}
	cmiName := r.GetCMIName("vector")
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, cmiName)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, cmiName), []byte("cmi"), 0o644))

	s := NewServer(nil, r)
	r.IncludeTranslateRequest(s, "vector")
	s.Out.PrepareToWrite()
	assert.Equal(t, "MODULE-CMI "+cmiName+"\n", string(s.Out.Bytes()))
}

func TestIncludeTranslateRequestFallsBackToText(t *testing.T) {
	dir := t.TempDir()
	r := &DefaultResolver{RepoDir: dir}
	s := NewServer(nil, r)
	r.IncludeTranslateRequest(s, "not-there.h")
	s.Out.PrepareToWrite()
	assert.Equal(t, "INCLUDE-TEXT\n", string(s.Out.Bytes()))
}

func TestModuleCompiledRequestIsOK(t *testing.T) {
	r := NewDefaultResolver()
	s := NewServer(nil, r)
	r.ModuleCompiledRequest(s, "foo")
	s.Out.PrepareToWrite()
	assert.Equal(t, "OK\n", string(s.Out.Bytes()))
}

func TestConnectRequestRejectsNewerVersion(t *testing.T) {
	r := NewDefaultResolver()
	s := NewServer(nil, r)
	next := r.ConnectRequest(s, ProtocolVersion+1, "gcc", "13.2")
	require.NotNil(t, next)
	s.Out.PrepareToWrite()
	assert.Equal(t, "ERROR 'version mismatch'\n", string(s.Out.Bytes()))
}

func TestConnectRequestAcceptsKnownVersion(t *testing.T) {
	r := NewDefaultResolver()
	s := NewServer(nil, r)
	next := r.ConnectRequest(s, ProtocolVersion, "gcc", "13.2")
	require.NotNil(t, next)
	s.Out.PrepareToWrite()
	assert.Equal(t, "HELLO 1 "+DefaultAgentIdent+"\n", string(s.Out.Bytes()))
}
