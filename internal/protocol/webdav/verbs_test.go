package webdav

import (
	"encoding/xml"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPut(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPut, "/notes/a.txt", "first")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "first", e.readFile("notes/a.txt"))

	rec = e.do(http.MethodPut, "/notes/a.txt", "second")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "second", e.readFile("notes/a.txt"))

	rec = e.do(http.MethodPost, "/notes/b.txt", "posted")
	assert.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, [][]string{
		{"create", "/notes/a.txt"},
		{"modify", "/notes/a.txt"},
		{"create", "/notes/b.txt"},
	}, e.notifications())
}

func TestPutOntoCollection(t *testing.T) {
	e := newEnv(t)
	e.mkdir("dir")

	assert.Equal(t, http.StatusMethodNotAllowed, e.do(http.MethodPut, "/dir", "x").Code)
	assert.Empty(t, e.notifications())
}

func TestPutOutsideRoot(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, "/../escape.txt", "x").Code)
}

func TestPutObjectContentType(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPut, "/bucket/data.bin", "{}", "Content-Type", "application/json; charset=utf-8")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(http.MethodGet, "/bucket/data.bin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "{}", rec.Body.String())

	rec = e.do(http.MethodPut, "/bucket/page.html", "<p/>")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = e.do(http.MethodHead, "/bucket/page.html", "")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	assert.Contains(t, e.objects.Keys(), "data.bin")
}

func TestPutObjectWritesOnce(t *testing.T) {
	e := newEnv(t)

	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/a.txt", "one").Code)
	require.Equal(t, http.StatusNoContent, e.do(http.MethodPut, "/bucket/a.txt", "two", "Content-Type", "text/csv").Code)

	assert.Equal(t, 2, e.ops.count("put"))
	assert.Zero(t, e.ops.count("copy"), "content type is stored with the body")

	rec := e.do(http.MethodHead, "/bucket/a.txt", "")
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	e.writeFile("tree/a.txt", "a")
	e.writeFile("tree/sub/b.txt", "b")
	e.writeFile("tree/sub/c.txt", "c")
	e.mkdir("tree/sub/empty")
	e.writeFile("single.txt", "s")

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/missing", "").Code)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/single.txt", "").Code)
	assert.False(t, e.exists("single.txt"))

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/tree", "").Code)
	assert.False(t, e.exists("tree"))

	changes := e.notifications()
	require.Len(t, changes, 7)
	assert.Equal(t, []string{"delete", "/single.txt"}, changes[0])

	position := map[string]int{}
	for i, c := range changes {
		assert.Equal(t, "delete", c[0])
		position[c[1]] = i
	}
	assert.Less(t, position["/tree/a.txt"], position["/tree"])
	assert.Less(t, position["/tree/sub"], position["/tree"])
	assert.Less(t, position["/tree/sub/b.txt"], position["/tree/sub"])
	assert.Less(t, position["/tree/sub/c.txt"], position["/tree/sub"])
	assert.Less(t, position["/tree/sub/empty"], position["/tree/sub"])
	assert.Equal(t, 6, position["/tree"])
}

func TestDeleteObjectFolder(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.do("MKCOL", "/bucket/dir", "").Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/dir/a.txt", "a").Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/dir/deep/b.txt", "b").Code)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/bucket/dir", "").Code)
	assert.Empty(t, e.objects.Keys())
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/bucket/dir/a.txt", "").Code)
}

func TestMkcol(t *testing.T) {
	e := newEnv(t)
	e.writeFile("file.txt", "x")

	assert.Equal(t, http.StatusCreated, e.do("MKCOL", "/new", "").Code)
	assert.True(t, e.exists("new"))

	assert.Equal(t, http.StatusOK, e.do("MKCOL", "/new", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, e.do("MKCOL", "/file.txt", "").Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, e.do("MKCOL", "/withbody", "<x/>").Code)
	assert.False(t, e.exists("withbody"))
	assert.Equal(t, http.StatusCreated, e.do("MKCOL", "/blank", " \n ").Code)

	assert.Equal(t, [][]string{
		{"make_collection", "/new"},
		{"make_collection", "/blank"},
	}, e.notifications())
}

func TestMoveFile(t *testing.T) {
	t.Run("ToNewPath", func(t *testing.T) {
		e := newEnv(t)
		e.writeFile("a.txt", "A")
		e.mkdir("dir")

		rec := e.do("MOVE", "/a.txt", "", "Destination", "http://files.test/dir/b.txt")
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.False(t, e.exists("a.txt"))
		assert.Equal(t, "A", e.readFile("dir/b.txt"))
		assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/a.txt", "").Code)

		assert.Equal(t, [][]string{{"rename", "/a.txt", "/dir/b.txt"}}, e.notifications())
	})

	t.Run("OntoExistingFile", func(t *testing.T) {
		e := newEnv(t)
		e.writeFile("a.txt", "new")
		e.writeFile("b.txt", "old")

		rec := e.do("MOVE", "/a.txt", "", "Destination", "/b.txt")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, e.exists("a.txt"))
		assert.Equal(t, "new", e.readFile("b.txt"))
	})

	t.Run("RelativeDestination", func(t *testing.T) {
		e := newEnv(t)
		e.writeFile("dir/a.txt", "A")

		rec := e.do("MOVE", "/dir/a.txt", "", "Destination", "renamed.txt")
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "A", e.readFile("dir/renamed.txt"))
	})

	t.Run("EscapedDestination", func(t *testing.T) {
		e := newEnv(t)
		e.writeFile("a.txt", "A")

		rec := e.do("MOVE", "/a.txt", "", "Destination", "http://files.test/with%20space.txt")
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "A", e.readFile("with space.txt"))
	})
}

func TestMoveErrors(t *testing.T) {
	e := newEnv(t)
	e.writeFile("a.txt", "A")
	e.writeFile("dir/inner.txt", "I")
	e.mkdir("other")

	tests := []struct {
		name   string
		source string
		dest   string
		status int
	}{
		{"MissingSource", "/missing.txt", "/x.txt", http.StatusNotFound},
		{"MissingDestination", "/a.txt", "", http.StatusBadRequest},
		{"FileOntoDirectory", "/a.txt", "/other", http.StatusMethodNotAllowed},
		{"DirectoryOntoFile", "/dir", "/a.txt", http.StatusMethodNotAllowed},
		{"DirectoryOntoDirectory", "/dir", "/other", http.StatusMethodNotAllowed},
		{"MissingParent", "/a.txt", "/nowhere/a.txt", http.StatusNotFound},
		{"OntoItself", "/a.txt", "/a.txt", http.StatusForbidden},
		{"IntoOwnSubtree", "/dir", "/dir/sub", http.StatusForbidden},
		{"CrossMount", "/a.txt", "/bucket/a.txt", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.dest != "" {
				headers = []string{"Destination", tt.dest}
			}
			assert.Equal(t, tt.status, e.do("MOVE", tt.source, "", headers...).Code)
		})
	}

	assert.Equal(t, "A", e.readFile("a.txt"))
	assert.Equal(t, "I", e.readFile("dir/inner.txt"))
	assert.Empty(t, e.notifications())
}

func TestMoveCollection(t *testing.T) {
	e := newEnv(t)
	e.writeFile("src/one.txt", "1")
	e.writeFile("src/nested/two.txt", "2")

	rec := e.do("MOVE", "/src", "", "Destination", "/dst")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/dst/", rec.Header().Get("Location"))
	assert.False(t, e.exists("src"))
	assert.Equal(t, "2", e.readFile("dst/nested/two.txt"))
}

func TestMoveObjectCollection(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/src/a.txt", "a").Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/src/b/c.txt", "c").Code)

	rec := e.do("MOVE", "/bucket/src", "", "Destination", "/bucket/dst")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.ElementsMatch(t, []string{"dst/a.txt", "dst/b/c.txt"}, e.objects.Keys())

	rec = e.do(http.MethodGet, "/bucket/dst/b/c.txt", "")
	assert.Equal(t, "c", rec.Body.String())
}

func TestPropfindDepth(t *testing.T) {
	e := newEnv(t)
	e.writeFile("top/a.txt", "aaa")
	e.writeFile("top/sub/b.txt", "b")

	t.Run("Zero", func(t *testing.T) {
		rec := e.do("PROPFIND", "/top", "", "Depth", "0")
		require.Equal(t, http.StatusMultiStatus, rec.Code)
		assert.Equal(t, []string{"/top/"}, hrefs(parseMultistatus(t, rec.Body.Bytes())))
	})

	t.Run("One", func(t *testing.T) {
		rec := e.do("PROPFIND", "/top", "", "Depth", "1")
		require.Equal(t, http.StatusMultiStatus, rec.Code)
		got := hrefs(parseMultistatus(t, rec.Body.Bytes()))
		require.Len(t, got, 3)
		assert.Equal(t, "/top/", got[0])
		assert.ElementsMatch(t, []string{"/top/a.txt", "/top/sub/"}, got[1:])
	})

	t.Run("Infinity", func(t *testing.T) {
		for _, depth := range []string{"infinity", ""} {
			var headers []string
			if depth != "" {
				headers = []string{"Depth", depth}
			}
			rec := e.do("PROPFIND", "/top", "", headers...)
			require.Equal(t, http.StatusMultiStatus, rec.Code)
			assert.ElementsMatch(t,
				[]string{"/top/", "/top/a.txt", "/top/sub/", "/top/sub/b.txt"},
				hrefs(parseMultistatus(t, rec.Body.Bytes())))
		}
	})

	t.Run("Missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, e.do("PROPFIND", "/absent", "").Code)
	})
}

func TestPropfindProperties(t *testing.T) {
	e := newEnv(t)
	e.writeFile("dir/my file.txt", "12345")

	rec := e.do("PROPFIND", "/dir", "", "Depth", "1")
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "xml")
	assert.True(t, strings.HasPrefix(rec.Body.String(), xml.Header))

	responses := parseMultistatus(t, rec.Body.Bytes())
	require.Len(t, responses, 2)

	dir, file := responses[0], responses[1]

	assert.Equal(t, "/dir/", dir.Href)
	assert.NotNil(t, dir.Collection)
	assert.Empty(t, dir.ContentType)
	assert.Equal(t, "HTTP/1.1 200 OK", dir.Status)

	assert.Equal(t, "/dir/my%20file.txt", file.Href)
	assert.Nil(t, file.Collection)
	assert.Equal(t, "5", file.ContentLength)
	assert.Contains(t, file.ContentType, "text/plain")
	assert.NotEmpty(t, file.CreationDate)
	assert.NotEmpty(t, file.LastModified)
	assert.Regexp(t, `^"\d+"$`, file.ETag)
}

func TestPropfindObjectMount(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/photos/cat.jpg", "meow").Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/bucket/readme.md", "# hi").Code)

	rec := e.do("PROPFIND", "/bucket", "", "Depth", "1")
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	got := hrefs(parseMultistatus(t, rec.Body.Bytes()))
	require.Len(t, got, 3)
	assert.Equal(t, "/bucket/", got[0])
	assert.ElementsMatch(t, []string{"/bucket/photos/", "/bucket/readme.md"}, got[1:])
}

func TestLock(t *testing.T) {
	e := newEnv(t)
	e.writeFile("doc.txt", "x")

	var discovery struct {
		Exclusive *struct{} `xml:"DAV: lockdiscovery>activelock>lockscope>exclusive"`
		Shared    *struct{} `xml:"DAV: lockdiscovery>activelock>lockscope>shared"`
		Write     *struct{} `xml:"DAV: lockdiscovery>activelock>locktype>write"`
		Depth     string    `xml:"DAV: lockdiscovery>activelock>depth"`
		Owner     string    `xml:"DAV: lockdiscovery>activelock>owner>href"`
		Timeout   string    `xml:"DAV: lockdiscovery>activelock>timeout"`
		Token     string    `xml:"DAV: lockdiscovery>activelock>locktoken>href"`
		Root      string    `xml:"DAV: lockdiscovery>activelock>lockroot>href"`
	}

	t.Run("Defaults", func(t *testing.T) {
		rec := e.do("LOCK", "/doc.txt", "")
		require.Equal(t, http.StatusOK, rec.Code)

		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &discovery))
		assert.NotNil(t, discovery.Exclusive)
		assert.NotNil(t, discovery.Write)
		assert.Equal(t, "infinity", discovery.Depth)
		assert.Equal(t, "/doc.txt", discovery.Owner)
		assert.Equal(t, "Second-3600", discovery.Timeout)
		assert.Equal(t, "/doc.txt", discovery.Root)
		assert.True(t, strings.HasPrefix(discovery.Token, "opaquelocktoken:"))
		assert.Equal(t, "<"+discovery.Token+">", rec.Header().Get("Lock-Token"))
	})

	t.Run("FromBody", func(t *testing.T) {
		body := `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:shared/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner><D:href>mailto:alice@example.com</D:href></D:owner>
</D:lockinfo>`
		rec := e.do("LOCK", "/doc.txt", body, "Timeout", "Infinite")
		require.Equal(t, http.StatusOK, rec.Code)

		discovery.Exclusive, discovery.Shared = nil, nil
		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &discovery))
		assert.NotNil(t, discovery.Shared)
		assert.Nil(t, discovery.Exclusive)
		assert.Equal(t, "mailto:alice@example.com", discovery.Owner)
		assert.Equal(t, "Infinite", discovery.Timeout)
	})

	t.Run("EchoesLockType", func(t *testing.T) {
		body := `<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:exclusive/></D:lockscope>
  <D:locktype><D:transaction/></D:locktype>
</D:lockinfo>`
		rec := e.do("LOCK", "/doc.txt", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var echoed struct {
			Type struct {
				Children []struct {
					XMLName xml.Name
				} `xml:",any"`
			} `xml:"DAV: lockdiscovery>activelock>locktype"`
		}
		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &echoed))
		require.Len(t, echoed.Type.Children, 1)
		assert.Equal(t, xml.Name{Space: "DAV:", Local: "transaction"}, echoed.Type.Children[0].XMLName)
	})

	t.Run("FreshTokens", func(t *testing.T) {
		a := e.do("LOCK", "/doc.txt", "").Header().Get("Lock-Token")
		b := e.do("LOCK", "/doc.txt", "").Header().Get("Lock-Token")
		assert.NotEqual(t, a, b)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, e.do("LOCK", "/doc.txt", "<not xml").Code)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, e.do("LOCK", "/nope.txt", "").Code)
	})
}

func TestUnlock(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusNoContent, e.do("UNLOCK", "/whatever", "", "Lock-Token", "<bogus>").Code)
}

func TestTraverseDepth(t *testing.T) {
	assert.Equal(t, 0, parseDepth("0"))
	assert.Equal(t, 1, parseDepth("1"))
	assert.Equal(t, DepthInfinity, parseDepth("infinity"))
	assert.Equal(t, DepthInfinity, parseDepth(""))
	assert.Equal(t, DepthInfinity, parseDepth("2"))
}

func TestDestinationPath(t *testing.T) {
	src := mustPath("/a/b/c.txt")

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"http://host/x/y.txt", "/x/y.txt", true},
		{"/x/y.txt", "/x/y.txt", true},
		{"y.txt", "/a/b/y.txt", true},
		{"../y.txt", "/a/y.txt", true},
		{"http://host/x/%C3%A9.txt", "/x/é.txt", true},
		{"/x/../../y", "/y", true},
		{"", "", false},
		{"http://host", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := destinationPath(tt.header, src)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}
