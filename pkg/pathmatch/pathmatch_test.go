package pathmatch

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":            "/",
		"/":           "/",
		"a":           "/a",
		"/a/":         "/a",
		"/a//":        "/a",
		"/a/b?x=1":    "/a/b?x=1",
		"/a/?x=1#top": "/a?x=1#top",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), in)
	}
}

func TestCompile_FullMatch(t *testing.T) {
	m, err := Compile("/items/:id", Options{End: true})
	require.NoError(t, err)
	require.Equal(t, "/items/{id}", m.Route())
	require.True(t, m.End())

	require.True(t, m.Test("/items/7"))
	require.True(t, m.Test("/items/7/"))
	require.True(t, m.Test("/items/7?expand=true"))
	require.False(t, m.Test("/items"))
	require.False(t, m.Test("/items/7/parts"))

	require.Equal(t, map[string]string{"id": "7"}, m.Params("/items/7"))
	require.Nil(t, m.Params("/other"))
}

func TestCompile_PrefixMatch(t *testing.T) {
	m, err := Compile("/api", Options{})
	require.NoError(t, err)

	require.True(t, m.Test("/api"))
	require.True(t, m.Test("/api/users/7"))
	require.False(t, m.Test("/apiary"))
	require.Equal(t, map[string]string{}, m.Params("/api/users"))

	require.Equal(t, "/api", m.Prefix("/api/users/7"))
	require.Equal(t, "", m.Prefix("/nope"))
}

func TestCompile_RootPrefix(t *testing.T) {
	m := MustCompile("/", Options{})
	require.True(t, m.Test("/"))
	require.True(t, m.Test("/anything/at/all"))
	require.Equal(t, "/", m.Prefix("/anything"))
}

func TestCompile_BraceSyntaxAndWildcard(t *testing.T) {
	m, err := Compile("/files/{kind}/*", Options{End: true})
	require.NoError(t, err)
	require.True(t, m.Test("/files/img/a/b.png"))
	require.Equal(t, map[string]string{"kind": "img", "*": "a/b.png"}, m.Params("/files/img/a/b.png"))
	require.Equal(t, "/files/img", m.Prefix("/files/img/a/b.png"))

	r, err := Compile("/n/{id:[0-9]+}", Options{End: true})
	require.NoError(t, err)
	require.True(t, r.Test("/n/42"))
	require.False(t, r.Test("/n/abc"))
	require.Equal(t, "42", r.Params("/n/42")["id"])
}

func TestCompile_PrefixParamsIgnoreImplicitTail(t *testing.T) {
	m := MustCompile("/users/:id", Options{})
	require.Equal(t, map[string]string{"id": "9"}, m.Params("/users/9/posts"))
	require.Equal(t, "/users/9", m.Prefix("/users/9/posts"))
}

func TestCompile_UnescapesParams(t *testing.T) {
	m := MustCompile("/tags/:name", Options{End: true})
	require.Equal(t, "a b", m.Params("/tags/a%20b")["name"])
}

func TestCompile_BadPatterns(t *testing.T) {
	for _, p := range []string{"/a/*/b", "/:", "/a//b", "/{}"} {
		_, err := Compile(p, Options{})
		require.ErrorIs(t, err, ErrBadPattern, p)
	}
	require.Panics(t, func() { MustCompile("/a/*/b", Options{}) })
}

func TestResolve(t *testing.T) {
	m := MustCompile("/users/:id/posts/:post", Options{End: true})

	got, err := m.Resolve(map[string]string{"id": "1", "post": "hello world"}, ResolveOptions{})
	require.NoError(t, err)
	require.Equal(t, "/users/1/posts/hello%20world", got)

	// round trip
	require.Equal(t, map[string]string{"id": "1", "post": "hello world"}, m.Params(got))

	got, err = m.Resolve(map[string]string{"id": "1", "post": "p"}, ResolveOptions{
		Query: url.Values{"page": {"2"}},
		Hash:  "#c",
	})
	require.NoError(t, err)
	require.Equal(t, "/users/1/posts/p?page=2#c", got)

	_, err = m.Resolve(map[string]string{"id": "1"}, ResolveOptions{})
	require.ErrorIs(t, err, ErrMissingParam)

	root := MustCompile("/", Options{})
	got, err = root.Resolve(nil, ResolveOptions{})
	require.NoError(t, err)
	require.Equal(t, "/", got)
}
