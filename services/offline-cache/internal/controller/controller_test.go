package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/offline-cache/internal/storage"
)

var iconBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01}

// fakeOrigin сервер приложения в памяти
type fakeOrigin struct {
	mu      sync.Mutex
	offline bool
	hang    bool
	pages   map[string]*storage.StoredResponse
	calls   map[string]int
}

func newFakeOrigin() *fakeOrigin {
	page := func(ct string, body []byte) *storage.StoredResponse {
		return &storage.StoredResponse{Status: http.StatusOK, Header: http.Header{"Content-Type": []string{ct}}, Body: body}
	}
	return &fakeOrigin{
		pages: map[string]*storage.StoredResponse{
			"/":                   page("text/html", []byte("<html>shell</html>")),
			"/manifest.json":      page("application/json", []byte(`{"name":"PAYKI"}`)),
			"/icons/icon-192.png": page("image/png", iconBytes),
			"/icons/icon-512.png": page("image/png", []byte("icon-512")),
			"/user":               page("text/html", []byte("<html>user</html>")),
			"/api/balance":        page("application/json", []byte(`{"balance":4.5}`)),
			"/styles.css":         page("text/css", []byte("body{}")),
			"/about":              page("text/html", []byte("about")),
		},
		calls: make(map[string]int),
	}
}

func (f *fakeOrigin) set(path string, resp *storage.StoredResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path] = resp
}

func (f *fakeOrigin) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeOrigin) setHang(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang = v
}

func (f *fakeOrigin) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeOrigin) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	key := req.URL.RequestURI()
	f.calls[key]++
	offline, hang := f.offline, f.hang
	page, ok := f.pages[key]
	f.mu.Unlock()

	if hang {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	if offline {
		return nil, errors.New("dial tcp 127.0.0.1:3000: connect: connection refused")
	}
	if !ok {
		return (&storage.StoredResponse{Status: http.StatusNotFound, Body: []byte("not found")}).Response(req), nil
	}
	return page.Response(req), nil
}

func newTestController(t *testing.T) (*Controller, *fakeOrigin, *storage.MemoryStorage) {
	t.Helper()

	origin, err := url.Parse("http://app.local")
	require.NoError(t, err)

	opts := DefaultOptions(origin)
	opts.Generation = "payki-cache-test"
	opts.NavigationTimeout = 50 * time.Millisecond

	fake := newFakeOrigin()
	cs := storage.NewMemoryStorage()
	c := New(opts, cs, fake, nil, nil, logger.NewNopLogger())
	return c, fake, cs
}

func get(t *testing.T, c *Controller, path string, header ...string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://app.local"+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return c.RoundTrip(req)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func navigate(t *testing.T, c *Controller, path string) (*http.Response, error) {
	return get(t, c, path, "Sec-Fetch-Mode", "navigate", "Accept", "text/html")
}

func TestStart_LeavesSingleGeneration(t *testing.T) {
	c, _, cs := newTestController(t)
	ctx := context.Background()

	for _, name := range []string{"payki-cache-v3", "payki-cache-v4"} {
		old, err := cs.Open(ctx, name)
		require.NoError(t, err)
		require.NoError(t, old.Put(ctx, "/", &storage.StoredResponse{Status: http.StatusOK, Body: []byte("old")}))
	}

	require.NoError(t, c.Start(ctx))

	names, err := cs.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"payki-cache-test"}, names)
	assert.True(t, c.Claimed())

	cache, err := cs.Open(ctx, "payki-cache-test")
	require.NoError(t, err)
	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/", "/manifest.json", "/icons/icon-192.png", "/icons/icon-512.png"}, keys)
}

func TestInstall_AllOrNothing(t *testing.T) {
	c, fake, cs := newTestController(t)
	ctx := context.Background()

	fake.set("/icons/icon-512.png", &storage.StoredResponse{Status: http.StatusInternalServerError})

	err := c.Install(ctx)
	require.Error(t, err)
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnavailable, code)

	names, err := cs.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.False(t, c.Claimed())
}

func TestRoundTrip_PassThroughBeforeActivation(t *testing.T) {
	c, fake, cs := newTestController(t)

	resp, err := get(t, c, "/styles.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", readBody(t, resp))
	assert.Empty(t, resp.Header.Get(HeaderCache))
	assert.Equal(t, 1, fake.count("/styles.css"))

	names, _ := cs.Keys(context.Background())
	assert.Empty(t, names)
}

func TestRoundTrip_PrecachedIconWhileOffline(t *testing.T) {
	c, fake, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background()))

	fake.setOffline(true)

	resp, err := get(t, c, "/icons/icon-192.png")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, SourceHit, resp.Header.Get(HeaderCache))
	assert.Equal(t, string(iconBytes), readBody(t, resp))
	c.Wait()
}

func TestRoundTrip_StaticRevalidatesInBackground(t *testing.T) {
	c, fake, cs := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	fake.set("/manifest.json", &storage.StoredResponse{Status: http.StatusOK, Body: []byte(`{"name":"PAYKI 2"}`)})

	resp, err := get(t, c, "/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"PAYKI"}`, readBody(t, resp))

	c.Wait()

	cached, err := cs.Match(ctx, "/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"PAYKI 2"}`, string(cached.Body))
}

func TestRoundTrip_StaticMissFetchesAndStores(t *testing.T) {
	c, fake, cs := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(ctx))

	resp, err := get(t, c, "/styles.css")
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, resp.Header.Get(HeaderCache))
	assert.Equal(t, "body{}", readBody(t, resp))

	fake.setOffline(true)
	resp, err = get(t, c, "/styles.css")
	require.NoError(t, err)
	assert.Equal(t, SourceHit, resp.Header.Get(HeaderCache))
	resp.Body.Close()
	c.Wait()

	// Ни в сети, ни в кэше
	_, err = get(t, c, "/app.js")
	require.Error(t, err)
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnavailable, code)

	cached, _ := cs.Match(ctx, "/app.js")
	assert.Nil(t, cached)
}

func TestRoundTrip_NavigationFallbacks(t *testing.T) {
	c, fake, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background()))

	resp, err := navigate(t, c, "/user")
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, resp.Header.Get(HeaderCache))
	assert.Equal(t, "<html>user</html>", readBody(t, resp))

	fake.setOffline(true)

	resp, err = navigate(t, c, "/user")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, resp.Header.Get(HeaderCache))
	assert.Equal(t, "<html>user</html>", readBody(t, resp))

	resp, err = navigate(t, c, "/driver")
	require.NoError(t, err)
	assert.Equal(t, SourceShell, resp.Header.Get(HeaderCache))
	assert.Equal(t, "<html>shell</html>", readBody(t, resp))
}

func TestRoundTrip_NavigationTimeout(t *testing.T) {
	c, fake, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	fake.setHang(true)

	start := time.Now()
	resp, err := navigate(t, c, "/admin")
	require.NoError(t, err)
	assert.Equal(t, SourceShell, resp.Header.Get(HeaderCache))
	resp.Body.Close()
	assert.Less(t, time.Since(start), time.Second)

	_, err = c.Clear(ctx)
	require.NoError(t, err)

	_, err = navigate(t, c, "/admin")
	require.Error(t, err)
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrTimeout, code)
}

func TestRoundTrip_API(t *testing.T) {
	c, fake, cs := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(ctx))

	resp, err := get(t, c, "/api/balance")
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, resp.Header.Get(HeaderCache))
	resp.Body.Close()

	cached, _ := cs.Match(ctx, "/api/balance")
	assert.Nil(t, cached)

	fake.setOffline(true)
	_, err = get(t, c, "/api/balance")
	require.Error(t, err)
}

func TestRoundTrip_APICachingEnabled(t *testing.T) {
	c, fake, _ := newTestController(t)
	c.opts.CacheAPI = true
	require.NoError(t, c.Activate(context.Background()))

	resp, err := get(t, c, "/api/balance")
	require.NoError(t, err)
	resp.Body.Close()

	fake.setOffline(true)
	resp, err = get(t, c, "/api/balance")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, resp.Header.Get(HeaderCache))
	assert.Equal(t, `{"balance":4.5}`, readBody(t, resp))
}

func TestRoundTrip_NetworkFirstStoresOnlySuccess(t *testing.T) {
	c, fake, cs := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(ctx))

	fake.set("/private", &storage.StoredResponse{
		Status: http.StatusOK,
		Header: http.Header{"Cache-Control": []string{"no-store"}},
		Body:   []byte("secret"),
	})
	fake.set("/broken", &storage.StoredResponse{Status: http.StatusBadGateway, Body: []byte("bad")})

	for _, path := range []string{"/about", "/private", "/broken"} {
		resp, err := get(t, c, path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	cached, _ := cs.Match(ctx, "/about")
	assert.NotNil(t, cached)
	cached, _ = cs.Match(ctx, "/private")
	assert.Nil(t, cached)
	cached, _ = cs.Match(ctx, "/broken")
	assert.Nil(t, cached)

	fake.setOffline(true)
	resp, err := get(t, c, "/about")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, resp.Header.Get(HeaderCache))
	assert.Equal(t, "about", readBody(t, resp))
}

func TestRoundTrip_NotIntercepted(t *testing.T) {
	c, fake, cs := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(ctx))

	fake.set("/_next/static/chunk.js", &storage.StoredResponse{Status: http.StatusOK, Body: []byte("chunk")})

	resp, err := get(t, c, "/_next/static/chunk.js")
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get(HeaderCache))
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, "http://app.local/api/balance", strings.NewReader("{}"))
	resp, err = c.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get(HeaderCache))
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodGet, "https://cdn.example.com/styles.css", nil)
	assert.Equal(t, ClassPassthrough, c.Classify(req))

	names, _ := cs.Keys(ctx)
	assert.Empty(t, names)
}

func TestClassify(t *testing.T) {
	c, _, _ := newTestController(t)

	tests := []struct {
		name   string
		method string
		url    string
		header map[string]string
		want   Class
	}{
		{"post", http.MethodPost, "http://app.local/", nil, ClassPassthrough},
		{"cross origin", http.MethodGet, "http://other.local/icons/a.png", nil, ClassPassthrough},
		{"next internals", http.MethodGet, "http://app.local/_next/data.json", nil, ClassBypass},
		{"hot update", http.MethodGet, "http://app.local/main.hot-update.js", nil, ClassBypass},
		{"stack frame", http.MethodGet, "http://app.local/__nextjs_original-stack-frame?x=1", nil, ClassBypass},
		{"navigate header", http.MethodGet, "http://app.local/", map[string]string{"Sec-Fetch-Mode": "navigate"}, ClassNavigation},
		{"accept html", http.MethodGet, "http://app.local/login", map[string]string{"Accept": "text/html,*/*"}, ClassNavigation},
		{"cors fetch of html", http.MethodGet, "http://app.local/login", map[string]string{"Sec-Fetch-Mode": "cors", "Accept": "text/html"}, ClassNetworkFirst},
		{"dynamic page", http.MethodGet, "http://app.local/driver/shift", nil, ClassNavigation},
		{"not dynamic page", http.MethodGet, "http://app.local/username", nil, ClassNetworkFirst},
		{"precache root", http.MethodGet, "http://app.local/", nil, ClassStatic},
		{"icon", http.MethodGet, "http://app.local/icons/icon-512.png", nil, ClassStatic},
		{"font", http.MethodGet, "http://app.local/fonts/inter.WOFF2", nil, ClassStatic},
		{"api", http.MethodGet, "http://app.local/api/me", nil, ClassAPI},
		{"other", http.MethodGet, "http://app.local/terms", nil, ClassNetworkFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.url, nil)
			require.NoError(t, err)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, c.Classify(req))
		})
	}
}

func TestGenerationName(t *testing.T) {
	precache := []string{"/", "/manifest.json"}

	name := GenerationName("payki-cache", precache)
	assert.True(t, strings.HasPrefix(name, "payki-cache-"))
	assert.Len(t, name, len("payki-cache-")+12)
	assert.Equal(t, name, GenerationName("payki-cache-", precache))

	assert.NotEqual(t, name, GenerationName("payki-cache", []string{"/"}))

	old := BuildHash
	BuildHash = "abc123"
	defer func() { BuildHash = old }()
	assert.NotEqual(t, name, GenerationName("payki-cache", precache))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := OptionsFromConfig(configWithOrigin("not a url"), pushDefaults())
	require.Error(t, err)

	opts, err := OptionsFromConfig(configWithOrigin("http://localhost:3000"), pushDefaults())
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", opts.Origin.Host)
	assert.Equal(t, 2*time.Second, opts.NavigationTimeout)
	assert.Equal(t, "Hola", opts.Push.Title)
	assert.Equal(t, "Notificación", opts.Push.Body)
	assert.True(t, strings.HasPrefix(opts.Generation, "payki-cache-"))
}
