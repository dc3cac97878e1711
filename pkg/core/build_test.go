package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/joeydtaylor/steeze-stack/pkg/core"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	httpx "github.com/joeydtaylor/steeze-stack/pkg/transport/httpx"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	mu        sync.Mutex
	published []core.RelayRequest
	requested []core.RelayRequest
	reply     []byte
	err       error
}

func (f *fakeRelay) Publish(_ context.Context, rr core.RelayRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, rr)
	return f.err
}

func (f *fakeRelay) Request(_ context.Context, rr core.RelayRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, rr)
	return f.reply, f.err
}

func (f *fakeRelay) last() core.RelayRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func buildStack(t *testing.T, toml string, d core.BuildDeps) *stack.Stack {
	t.Helper()
	cfg, err := core.ParseConfig([]byte(toml), "toml")
	require.NoError(t, err)
	s, err := core.BuildStack(cfg, d)
	require.NoError(t, err)
	return s
}

func newApp(s *stack.Stack, opts ...httpx.AdapterOption) http.Handler {
	base := []httpx.AdapterOption{httpx.AdapterReceiver(core.Handlers), httpx.AdapterErrors(core.WriteError)}
	return httpx.NewAdapter(s, append(base, opts...)...)
}

func do(h http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorBody {
	t.Helper()
	var eb core.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	return eb
}

func TestBuild_StaticRoute(t *testing.T) {
	app := newApp(buildStack(t, `
[[route]]
path = "/health"
method = "GET"
[route.handler]
type = "static"
body = '{"ok":true}'
`, core.BuildDeps{}))

	rec := do(app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(app, http.MethodPost, "/health", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(app, http.MethodGet, "/health/deeper", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuild_InprocParamsAndBody(t *testing.T) {
	core.Register("test.items.update", func(ctx context.Context, in []byte) ([]byte, int, error) {
		id := core.ParamsFrom(ctx)["id"]
		return []byte(`{"id":"` + id + `","in":` + string(in) + `}`), http.StatusCreated, nil
	})
	app := newApp(buildStack(t, `
[[route]]
path = "/items/:id"
method = "put"
[route.handler]
name = "test.items.update"
`, core.BuildDeps{}))

	rec := do(app, http.MethodPut, "/items/7", `{"n":1}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"id":"7","in":{"n":1}}`, rec.Body.String())
}

func TestBuild_InprocErrors(t *testing.T) {
	core.Register("test.items.reject", func(context.Context, []byte) ([]byte, int, error) {
		return nil, http.StatusUnprocessableEntity, errors.New("bad input")
	})
	core.Register("test.items.crash", func(context.Context, []byte) ([]byte, int, error) {
		return nil, 0, errors.New("db password is hunter2")
	})
	app := newApp(buildStack(t, `
[[route]]
path = "/reject"
[route.handler]
name = "test.items.reject"

[[route]]
path = "/crash"
[route.handler]
name = "test.items.crash"

[[route]]
path = "/missing"
[route.handler]
name = "test.items.nobody-registered-this"
`, core.BuildDeps{}))

	rec := do(app, http.MethodPost, "/reject", `{}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, core.ErrorBody{Error: "bad input", Status: http.StatusUnprocessableEntity}, errorBody(t, rec))

	rec = do(app, http.MethodGet, "/crash", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "hunter2")

	rec = do(app, http.MethodGet, "/missing", "", nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestBuild_Guards(t *testing.T) {
	core.Register("test.guarded", func(ctx context.Context, _ []byte) ([]byte, int, error) {
		u, _ := auth.UserFrom(ctx)
		return []byte(`{"user":"` + u.Username + `"}`), 0, nil
	})
	cfg := `
[[route]]
path = "/admin/reports"
[route.guard]
roles = ["editor"]
[route.handler]
name = "test.guarded"

[[route]]
path = "/me"
[route.guard]
users = ["ann"]
[route.handler]
name = "test.guarded"
`
	a := auth.New(auth.WithDevBypass(true), auth.WithAdminRole("admin"))
	app := newApp(buildStack(t, cfg, core.BuildDeps{Auth: a}))

	dev := func(user, role string) map[string]string {
		return map[string]string{"X-Dev-User": user, "X-Dev-Role": role}
	}

	rec := do(app, http.MethodGet, "/admin/reports", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", errorBody(t, rec).Error)

	rec = do(app, http.MethodGet, "/admin/reports", "", dev("bob", "viewer"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(app, http.MethodGet, "/admin/reports", "", dev("bob", "editor"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user":"bob"}`, rec.Body.String())

	rec = do(app, http.MethodGet, "/admin/reports", "", dev("root", "admin"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(app, http.MethodGet, "/me", "", dev("bob", "admin"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(app, http.MethodGet, "/me", "", dev("ann", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	// without an auth middleware nobody gets through a guard
	noAuth := newApp(buildStack(t, cfg, core.BuildDeps{}))
	rec = do(noAuth, http.MethodGet, "/admin/reports", "", dev("root", "admin"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuild_ErrorRouteRendersPuntedErrors(t *testing.T) {
	core.Register("test.teapot", func(context.Context, []byte) ([]byte, int, error) {
		return nil, http.StatusTeapot, errors.New("short and stout")
	})
	s := buildStack(t, `
[[route]]
path = "/pot"
[route.handler]
name = "test.teapot"

[[route]]
name = "errors"
path = "/"
mount = true
[route.handler]
type = "error"
`, core.BuildDeps{})
	// the adapter's own fallback would answer with a plain 500
	app := httpx.NewAdapter(s, httpx.AdapterReceiver(core.Handlers))

	rec := do(app, http.MethodGet, "/pot", "", nil)
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "short and stout", errorBody(t, rec).Error)
}

func TestBuild_TimeoutPolicy(t *testing.T) {
	core.Register("test.slow", func(ctx context.Context, _ []byte) ([]byte, int, error) {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	})
	app := newApp(buildStack(t, `
[[route]]
path = "/slow"
[route.policy]
timeout_ms = 20
[route.handler]
name = "test.slow"
`, core.BuildDeps{}))

	rec := do(app, http.MethodGet, "/slow", "", nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestBuild_RelayPublish(t *testing.T) {
	rel := &fakeRelay{}
	app := newApp(buildStack(t, `
[[route]]
path = "/jobs"
method = "POST"
[route.handler]
type = "relay.publish"
[route.handler.relay]
topic = "jobs"
`, core.BuildDeps{Relay: rel}))

	rec := do(app, http.MethodPost, "/jobs", `{"n":1}`, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())

	got := rel.last()
	require.Equal(t, "jobs", got.Topic)
	require.Equal(t, `{"n":1}`, string(got.Body))
	require.Equal(t, "POST", got.Headers["x-method"])
	require.Equal(t, "/jobs", got.Headers["x-url"])
	require.Equal(t, "application/json", got.Headers["content-type"])
}

func TestBuild_RelayRequest(t *testing.T) {
	cfg := `
[[route]]
path = "/quote"
[route.handler]
type = "relay.request"
[route.handler.relay]
topic = "quotes"
deadline_ms = 500
`
	rel := &fakeRelay{reply: []byte(`{"price":42}`)}
	rec := do(newApp(buildStack(t, cfg, core.BuildDeps{Relay: rel})), http.MethodGet, "/quote", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"price":42}`, rec.Body.String())
	require.Len(t, rel.requested, 1)
	require.Equal(t, "quotes", rel.requested[0].Topic)

	rec = do(newApp(buildStack(t, cfg, core.BuildDeps{})), http.MethodGet, "/quote", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBuild_HandoffRoundTrip(t *testing.T) {
	core.Register("test.reports.build", func(ctx context.Context, in []byte) ([]byte, int, error) {
		u, _ := auth.UserFrom(ctx)
		id := core.ParamsFrom(ctx)["id"]
		return []byte(`{"report":"` + id + `","by":"` + u.Username + `","in":` + string(in) + `}`), 0, nil
	})
	rel := &fakeRelay{}
	s := buildStack(t, `
[handoff]
enabled = true
topic = "far"

[[route]]
path = "/reports/:id"
side = "far"
[route.handler]
name = "test.reports.build"
`, core.BuildDeps{Relay: rel})

	req := httptest.NewRequest(http.MethodPost, "/reports/9", strings.NewReader(`{"q":1}`))
	req = req.WithContext(auth.WithUser(req.Context(), auth.User{Username: "ann"}))
	rec := httptest.NewRecorder()
	newApp(s).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	id := rec.Header().Get(core.EnvelopeHeader)
	require.NotEmpty(t, id)

	pub := rel.last()
	require.Equal(t, "far", pub.Topic)
	require.Equal(t, id, pub.Headers["x-envelope-id"])

	var env core.Envelope
	require.NoError(t, json.Unmarshal(pub.Body, &env))
	require.Equal(t, "/reports/9", env.URL)
	require.Equal(t, "POST", env.Method)
	require.Equal(t, "ann", env.User.Username)

	rep, err := core.ServeEnvelope(context.Background(), s, pub.Body, stack.WithReceiver(core.Handlers))
	require.NoError(t, err)
	require.Equal(t, id, rep.ID)
	require.Equal(t, http.StatusOK, rep.Status)
	require.Empty(t, rep.Err)
	require.JSONEq(t, `{"report":"9","by":"ann","in":{"q":1}}`, string(rep.Body))
}

func TestBuild_HandoffPublishFailure(t *testing.T) {
	rel := &fakeRelay{err: errors.New("broker down")}
	app := newApp(buildStack(t, `
[handoff]
enabled = true
topic = "far"

[[route]]
path = "/reports"
side = "far"
[route.handler]
type = "static"
`, core.BuildDeps{Relay: rel}))

	rec := do(app, http.MethodGet, "/reports", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Empty(t, rec.Header().Get(core.EnvelopeHeader))
}

func TestServeEnvelope_Errors(t *testing.T) {
	s := buildStack(t, `
[[route]]
path = "/only-here"
side = "far"
[route.handler]
type = "static"
status = 204
`, core.BuildDeps{})

	_, err := core.ServeEnvelope(context.Background(), s, []byte(`{"id":"x","bogus":1}`))
	require.ErrorContains(t, err, "handoff decode")

	rep, err := core.ServeEnvelope(context.Background(), s, []byte(`{"id":"e1","url":"/only-here","method":"GET"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, rep.Status)
	require.Empty(t, rep.Err)

	// nothing on the far side handles this url
	rep, err = core.ServeEnvelope(context.Background(), s, []byte(`{"id":"e2","url":"/elsewhere","method":"GET"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, rep.Status)
	require.Empty(t, rep.Body)
}

func TestBuildRouter(t *testing.T) {
	s := buildStack(t, `
[[route]]
path = "/hello"
[route.handler]
type = "static"
body = '"hi"'
`, core.BuildDeps{})
	d := core.BuildDeps{
		Router: httpx.NewChi(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}
	h := core.BuildRouter(d, newApp(s))

	rec := do(h, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, "# metrics", rec.Body.String())

	rec = do(h, http.MethodGet, "/hello", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `"hi"`, rec.Body.String())

	rec = do(h, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
