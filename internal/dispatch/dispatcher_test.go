package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/discovery"
	"github.com/routefs/routefs/internal/observability"
	"github.com/routefs/routefs/internal/pipeline"
	"github.com/routefs/routefs/internal/router"
	"github.com/routefs/routefs/internal/rules"
	"github.com/routefs/routefs/internal/util"
)

type routeDef struct {
	pattern string
	method  string
	ref     string
	handler pipeline.Handler
}

type testSetup struct {
	routes     []routeDef
	ruleConfig []config.RouteRule
	middleware []pipeline.MiddlewareEntry
	decorator  *cache.Decorator
	proxy      *Proxy
}

func newTestDispatcher(t *testing.T, setup testSetup) *Dispatcher {
	t.Helper()

	registry := discovery.NewRegistry()
	entries := make([]*router.RouteEntry, 0, len(setup.routes))
	for _, def := range setup.routes {
		registry.HandleFunc(def.ref, def.handler)
		entry, err := router.NewRouteEntry(def.pattern, def.method, def.ref)
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	matcher, err := router.Compile(entries)
	require.NoError(t, err)

	resolver, err := rules.Compile(setup.ruleConfig)
	require.NoError(t, err)

	return New(Options{
		Matcher:   matcher,
		Resolver:  resolver,
		Pipeline:  pipeline.Build(setup.middleware),
		Registry:  registry,
		Decorator: setup.decorator,
		Proxy:     setup.proxy,
		Logger:    observability.NopLogger(),
	})
}

func doRequest(d *Dispatcher, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestDispatchLiteralBeatsParam(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/users/[id]", ref: "users/id", handler: func(c *pipeline.Context) (any, error) {
			return "user " + c.Param("id"), nil
		}},
		{pattern: "/users/list", ref: "users/list", handler: func(*pipeline.Context) (any, error) {
			return "the list", nil
		}},
	}})

	rec := doRequest(d, "GET", "/users/list")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the list", rec.Body.String())

	rec = doRequest(d, "GET", "/users/42")
	assert.Equal(t, "user 42", rec.Body.String())
}

func TestDispatchCatchAllRemainder(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/hello/[...name]", ref: "hello", handler: func(c *pipeline.Context) (any, error) {
			return "Hello " + c.Param("name") + "!", nil
		}},
	}})

	rec := doRequest(d, "GET", "/hello/routefs")
	assert.Equal(t, "Hello routefs!", rec.Body.String())

	// Embedded separators are captured verbatim.
	rec = doRequest(d, "GET", "/hello/routefs/is/fast")
	assert.Equal(t, "Hello routefs/is/fast!", rec.Body.String())
}

func TestDispatchMethodSpecificity(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/things", method: "POST", ref: "things.post", handler: func(*pipeline.Context) (any, error) {
			return "created", nil
		}},
		{pattern: "/things", ref: "things.any", handler: func(*pipeline.Context) (any, error) {
			return "listed", nil
		}},
	}})

	assert.Equal(t, "created", doRequest(d, "POST", "/things").Body.String())
	assert.Equal(t, "listed", doRequest(d, "GET", "/things").Body.String())
}

func TestDispatchNotFound(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/known", ref: "known", handler: func(*pipeline.Context) (any, error) {
			return "ok", nil
		}},
	}})

	rec := doRequest(d, "GET", "/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "/unknown")
}

func TestDispatchNoMatchErrorMapsToNotFound(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/things/[id]", ref: "thing", handler: func(c *pipeline.Context) (any, error) {
			// A handler may report its own resource as missing.
			return nil, util.NewRouteNotFoundError(c.Method(), c.Path())
		}},
	}})

	rec := doRequest(d, "GET", "/things/9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/things/9")
}

func TestDispatchRoutePatternInContext(t *testing.T) {
	t.Parallel()

	var got string
	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/users/[id]", ref: "user", handler: func(c *pipeline.Context) (any, error) {
			got = util.RouteFromContext(c.Context())
			return "ok", nil
		}},
	}})

	rec := doRequest(d, "GET", "/users/7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/users/[id]", got)
}

func TestDispatchHandlerErrorIsolated(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/flaky", ref: "flaky", handler: func(*pipeline.Context) (any, error) {
			if calls.Add(1) == 1 {
				return nil, assert.AnError
			}
			return "recovered", nil
		}},
	}})

	rec := doRequest(d, "GET", "/flaky")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// The failure does not poison subsequent requests.
	rec = doRequest(d, "GET", "/flaky")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "recovered", rec.Body.String())
}

func TestDispatchPanicRecovered(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/boom", ref: "boom", handler: func(*pipeline.Context) (any, error) {
			panic("unexpected")
		}},
	}})

	rec := doRequest(d, "GET", "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatchRedirectRule(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{
		ruleConfig: []config.RouteRule{
			{Pattern: "/old/**", Options: config.RuleOptions{
				Redirect: &config.RedirectOptions{To: "/new/**", Status: 301},
			}},
		},
	})

	rec := doRequest(d, "GET", "/old/posts/7")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/new/posts/7", rec.Header().Get("Location"))
}

func TestDispatchProxyRule(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("from upstream: " + r.URL.Path))
	}))
	t.Cleanup(upstream.Close)

	d := newTestDispatcher(t, testSetup{
		proxy: NewProxy(nil, nil),
		ruleConfig: []config.RouteRule{
			{Pattern: "/ext/**", Options: config.RuleOptions{
				Proxy: &config.ProxyTargetOptions{To: upstream.URL + "/**"},
			}},
		},
	})

	rec := doRequest(d, "GET", "/ext/a/b")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "from upstream: /a/b", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
}

func TestDispatchProxyForwardsQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(upstream.Close)

	d := newTestDispatcher(t, testSetup{
		proxy: NewProxy(nil, nil),
		ruleConfig: []config.RouteRule{
			{Pattern: "/api/**", Options: config.RuleOptions{
				Proxy: &config.ProxyTargetOptions{To: upstream.URL + "/**"},
			}},
		},
	})

	rec := doRequest(d, "GET", "/api/users?page=2&sort=name")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page=2&sort=name", gotQuery)
}

func TestDispatchProxyUpstreamDown(t *testing.T) {
	t.Parallel()

	// A server that is already closed refuses connections.
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	d := newTestDispatcher(t, testSetup{
		proxy: NewProxy(nil, nil),
		ruleConfig: []config.RouteRule{
			{Pattern: "/ext/**", Options: config.RuleOptions{
				Proxy: &config.ProxyTargetOptions{To: url + "/**"},
			}},
		},
	})

	rec := doRequest(d, "GET", "/ext/x")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDispatchRuleHeadersAndCORS(t *testing.T) {
	t.Parallel()

	corsEnabled := true
	d := newTestDispatcher(t, testSetup{
		routes: []routeDef{
			{pattern: "/api/data", ref: "data", handler: func(*pipeline.Context) (any, error) {
				return map[string]int{"n": 1}, nil
			}},
		},
		ruleConfig: []config.RouteRule{
			{Pattern: "/api/**", Options: config.RuleOptions{
				CORS:    &corsEnabled,
				Headers: map[string]string{"X-Powered-By": "routefs"},
			}},
		},
	})

	rec := doRequest(d, "GET", "/api/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "routefs", rec.Header().Get("X-Powered-By"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestDispatchCORSPreflight(t *testing.T) {
	t.Parallel()

	corsEnabled := true
	d := newTestDispatcher(t, testSetup{
		routes: []routeDef{
			{pattern: "/api/data", ref: "data", handler: func(*pipeline.Context) (any, error) {
				return "data", nil
			}},
		},
		ruleConfig: []config.RouteRule{
			{Pattern: "/api/**", Options: config.RuleOptions{CORS: &corsEnabled}},
		},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/data", nil)
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, rec.Body.String())

	// A plain OPTIONS request without the preflight header still routes.
	rec = doRequest(d, http.MethodOptions, "/api/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data", rec.Body.String())
}

func TestDispatchCacheRule(t *testing.T) {
	t.Parallel()

	store, err := cache.NewStore(&config.CacheConfig{Enabled: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var calls atomic.Int64
	d := newTestDispatcher(t, testSetup{
		decorator: cache.NewDecorator(store, nil),
		routes: []routeDef{
			{pattern: "/cached", ref: "cached", handler: func(*pipeline.Context) (any, error) {
				calls.Add(1)
				return "expensive", nil
			}},
		},
		ruleConfig: []config.RouteRule{
			{Pattern: "/cached", Options: config.RuleOptions{
				Cache: &config.RuleCacheOptions{MaxAge: 60},
			}},
		},
	})

	for i := 0; i < 3; i++ {
		rec := doRequest(d, "GET", "/cached")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "expensive", rec.Body.String())
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestDispatchMiddlewareShortCircuit(t *testing.T) {
	t.Parallel()

	var handlerCalls atomic.Int64
	d := newTestDispatcher(t, testSetup{
		middleware: []pipeline.MiddlewareEntry{
			{Name: "guard", Fn: func(c *pipeline.Context) (any, error) {
				if c.RequestHeader("Authorization") == "" {
					return pipeline.NewResponse(http.StatusUnauthorized, "text/plain", []byte("denied")), nil
				}
				return nil, nil
			}},
		},
		routes: []routeDef{
			{pattern: "/private", ref: "private", handler: func(*pipeline.Context) (any, error) {
				handlerCalls.Add(1)
				return "secret", nil
			}},
		},
	})

	rec := doRequest(d, "GET", "/private")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "denied", rec.Body.String())
	assert.Equal(t, int64(0), handlerCalls.Load())

	req := httptest.NewRequest("GET", "/private", nil)
	req.Header.Set("Authorization", "token")
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret", rec.Body.String())
}

func TestDispatchFallbackRoute(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, testSetup{routes: []routeDef{
		{pattern: "/known", ref: "known", handler: func(*pipeline.Context) (any, error) {
			return "ok", nil
		}},
		{pattern: "/[...]", ref: "fallback", handler: func(*pipeline.Context) (any, error) {
			return pipeline.NewResponse(http.StatusOK, "text/plain", []byte("custom fallback")), nil
		}},
	}})

	assert.Equal(t, "ok", doRequest(d, "GET", "/known").Body.String())

	rec := doRequest(d, "GET", "/anything/else")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "custom fallback", rec.Body.String())

	// Even the bare root path lands on the registered fallback.
	rec = doRequest(d, "GET", "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "custom fallback", rec.Body.String())
}
