package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/theoremus-urban-solutions/surveyor-tracking/capture"
	"github.com/theoremus-urban-solutions/surveyor-tracking/client"
	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
	"github.com/theoremus-urban-solutions/surveyor-tracking/dashboard"
	"github.com/theoremus-urban-solutions/surveyor-tracking/feed"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/polling"
)

const testSeed = `
surveyors:
  - id: SUR001
    name: Ana Petrova
    city: Sofia
    projectName: Metro Line 3
    username: ana
    password: secret
  - id: SUR002
    name: Boris Ivanov
    city: Plovdiv
    projectName: Ring Road
    username: boris
    password: pw2
  - id: SUR900
    name: Site Admin
    city: Sofia
    projectName: Metro Line 3
    username: admin
    password: root
`

type testBackend struct {
	srv    *httptest.Server
	server *Server
	store  *MemoryStore
	dir    *Directory
	clock  *clock.FakeClock
}

func newTestBackend(t *testing.T, opts ...Option) *testBackend {
	t.Helper()
	dir := NewDirectory()
	dir.cost = bcrypt.MinCost
	if _, err := dir.LoadSeedBytes([]byte(testSeed)); err != nil {
		t.Fatalf("LoadSeedBytes: %v", err)
	}
	clk := clock.Fake(t0)
	store := NewMemoryStore()
	opts = append([]Option{WithClock(clk), WithFeed("NEO", 30*time.Second)}, opts...)
	s := NewServer(store, dir, opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testBackend{srv: srv, server: s, store: store, dir: dir, clock: clk}
}

func (b *testBackend) client(t *testing.T) *client.Client {
	t.Helper()
	return client.NewClient(b.srv.URL, nil, client.WithTimeout(5*time.Second))
}

func (b *testBackend) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(b.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestLoginPushAndReadBack(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)
	ctx := context.Background()

	sess, err := c.Login(ctx, "ana", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Surveyor.ID != "SUR001" || sess.Surveyor.Password != "" {
		t.Fatalf("login surveyor = %+v", sess.Surveyor)
	}

	fix := model.NewLocationFix("SUR001", 42.6977, 23.3219, t0.Add(-time.Minute))
	if err := c.PushFix(ctx, fix); err != nil {
		t.Fatalf("PushFix: %v", err)
	}

	latest, err := c.FetchLatest(ctx, "SUR001")
	if err != nil || latest == nil {
		t.Fatalf("FetchLatest: %v %v", latest, err)
	}
	if latest.Timestamp != fix.Timestamp || latest.Latitude != fix.Latitude {
		t.Errorf("latest = %+v, want %+v", latest, fix)
	}

	none, err := c.FetchLatest(ctx, "SUR002")
	if err != nil || none != nil {
		t.Errorf("FetchLatest(SUR002) = %v, %v; want nil, nil", none, err)
	}

	all, err := c.FetchLatestAll(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("FetchLatestAll = %+v, %v", all, err)
	}

	status, err := c.FetchStatusAll(ctx)
	if err != nil {
		t.Fatalf("FetchStatusAll: %v", err)
	}
	if status["SUR001"] != model.Online || status["SUR002"] != model.Offline {
		t.Errorf("status = %v", status)
	}
	if _, ok := status["SUR900"]; ok {
		t.Error("admin account appears in the status map")
	}

	b.clock.Advance(5 * time.Minute)
	status, _ = c.FetchStatusAll(ctx)
	if status["SUR001"] != model.Offline {
		t.Errorf("after 6 minutes status = %v, want Offline", status["SUR001"])
	}
	t.Logf("✓ Login, push and read-back go through the backend")
}

func TestLoginRejectedByBackend(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)

	_, err := c.Login(context.Background(), "ana", "wrong")
	var ae *client.AuthError
	if !errors.As(err, &ae) || !ae.Rejected || ae.Status != http.StatusUnauthorized {
		t.Fatalf("Login error = %v, want rejected 401", err)
	}
	if _, ok := c.Session().Current(); ok {
		t.Error("credential installed after rejected login")
	}

	resp, err := http.Post(b.srv.URL+"/api/login", "application/json", strings.NewReader(`{"username":"ana"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("login without password: HTTP %d, want 400", resp.StatusCode)
	}
	t.Logf("✓ Bad credentials are rejected with 401")
}

func TestPushRequiresMatchingCredential(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)
	ctx := context.Background()
	fix := model.NewLocationFix("SUR001", 42.0, 23.0, t0)

	err := c.PushFix(ctx, fix)
	if !client.IsUnauthorized(err) || client.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("anonymous push: %v, want 401", err)
	}

	if _, err := c.Login(ctx, "boris", "pw2"); err != nil {
		t.Fatal(err)
	}
	err = c.PushFix(ctx, fix)
	if client.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("push for another surveyor: %v, want 403", err)
	}

	bad := model.NewLocationFix("SUR002", 123.0, 23.0, t0)
	if client.StatusCode(c.PushFix(ctx, bad)) != http.StatusBadRequest {
		t.Error("latitude out of range was accepted")
	}

	if latest, _ := b.store.Latest(ctx, "SUR001"); latest != nil {
		t.Errorf("rejected push was stored: %+v", latest)
	}
	t.Logf("✓ Pushes need the credential of the surveyor they report")
}

func TestPushWithoutTimestampUsesServerTime(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "ana", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := c.PushFix(ctx, model.LocationFix{SurveyorID: "SUR001", Latitude: 42, Longitude: 23}); err != nil {
		t.Fatalf("PushFix: %v", err)
	}
	latest, _ := b.store.Latest(ctx, "SUR001")
	if latest == nil || latest.Timestamp != "2025-03-01T08:00:00Z" {
		t.Errorf("stored fix = %+v, want server timestamp", latest)
	}
	t.Logf("✓ Missing timestamps are filled with server time")
}

func TestTrackEndpoint(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = b.store.SaveFix(ctx, fixAt("SUR001", time.Duration(i)*time.Minute, 42+float64(i)/10))
	}

	track, err := c.FetchTrack(ctx, "SUR001", t0.Add(time.Minute), t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("FetchTrack: %v", err)
	}
	if len(track) != 2 || track[0].Timestamp > track[1].Timestamp {
		t.Fatalf("track = %+v, want 2 ascending fixes", track)
	}

	empty, err := c.FetchTrack(ctx, "SUR001", t0.Add(time.Hour), t0.Add(2*time.Hour))
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("empty range = %#v, %v; want empty slice", empty, err)
	}

	_, err = c.FetchTrack(ctx, "SUR001", t0.Add(time.Hour), t0)
	var fe *client.FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusBadRequest {
		t.Errorf("start after end: %v, want 400 FetchError", err)
	}

	resp, _ := b.get(t, "/api/location/SUR001/track?start=yesterday&end=today")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unparseable bounds: HTTP %d, want 400", resp.StatusCode)
	}
	t.Logf("✓ Track endpoint filters, orders and validates ranges")
}

func TestSurveyorListsHideAdminsAndPasswords(t *testing.T) {
	b := newTestBackend(t)

	resp, body := b.get(t, "/api/surveyors")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("HTTP %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "password") {
		t.Errorf("surveyor list leaks passwords: %s", body)
	}
	var list []model.Surveyor
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("got %d surveyors, want 2 without the admin", len(list))
	}

	_, body = b.get(t, "/api/surveyors/filter?city=sof")
	list = nil
	_ = json.Unmarshal(body, &list)
	if len(list) != 1 || list[0].ID != "SUR001" {
		t.Errorf("filter city=sof = %+v", list)
	}
	t.Logf("✓ Surveyor endpoints exclude admin accounts and password fields")
}

func TestReadAuthAndCORS(t *testing.T) {
	b := newTestBackend(t, WithReadAuth(true))

	resp, _ := b.get(t, "/api/surveyors")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous read: HTTP %d, want 401", resp.StatusCode)
	}

	c := b.client(t)
	if _, err := c.Login(context.Background(), "ana", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.FetchSurveyors(context.Background()); err != nil {
		t.Errorf("authenticated read: %v", err)
	}

	req, _ := http.NewRequest(http.MethodOptions, b.srv.URL+"/api/location/update", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("preflight: HTTP %d, origin %q", resp.StatusCode, resp.Header.Get("Access-Control-Allow-Origin"))
	}
	t.Logf("✓ Read auth and CORS preflight")
}

func TestFeedEndpoints(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	_ = b.store.SaveFix(ctx, fixAt("SUR001", -time.Minute, 42.1))
	_ = b.store.SaveFix(ctx, fixAt("SUR002", -time.Hour, 42.5))

	resp, body := b.get(t, "/api/feeds/vehicle-positions.pb")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/x-protobuf" {
		t.Fatalf("HTTP %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	fixes, err := feed.ParseVehiclePositions(body)
	if err != nil || len(fixes) != 2 {
		t.Fatalf("ParseVehiclePositions = %+v, %v", fixes, err)
	}

	_, body = b.get(t, "/api/feeds/vehicle-monitoring.json?vehicleref=NEO_SUR001")
	var vm feed.SiriResponse
	if err := json.Unmarshal(body, &vm); err != nil {
		t.Fatalf("decode VM: %v", err)
	}
	activity := vm.Siri.ServiceDelivery.VehicleMonitoringDelivery[0].VehicleActivity
	if len(activity) != 1 || activity[0].MonitoredVehicleJourney.VehicleRef != "NEO_SUR001" {
		t.Fatalf("filtered activity = %+v", activity)
	}
	if !activity[0].MonitoredVehicleJourney.Monitored {
		t.Error("online surveyor not flagged Monitored")
	}

	resp, body = b.get(t, "/api/feeds/vehicle-monitoring.xml?lineref=ring%20road")
	if resp.Header.Get("Content-Type") != "application/xml" || !strings.Contains(string(body), "NEO_SUR002") {
		t.Errorf("XML feed: %s", body)
	}
	if strings.Contains(string(body), "NEO_SUR001") {
		t.Error("lineref filter let SUR001 through")
	}
	t.Logf("✓ GTFS-RT and SIRI feeds are served and filtered")
}

func TestFeedCacheInvalidatedByPush(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "ana", "secret"); err != nil {
		t.Fatal(err)
	}

	_, first := b.get(t, "/api/feeds/vehicle-positions.pb")
	_, again := b.get(t, "/api/feeds/vehicle-positions.pb")
	if string(first) != string(again) {
		t.Error("cached feed differs without a new fix")
	}

	if err := c.PushFix(ctx, model.NewLocationFix("SUR001", 42, 23, t0)); err != nil {
		t.Fatal(err)
	}
	_, body := b.get(t, "/api/feeds/vehicle-positions.pb")
	fixes, err := feed.ParseVehiclePositions(body)
	if err != nil || len(fixes) != 1 {
		t.Errorf("feed after push = %+v, %v; want the new fix", fixes, err)
	}
	t.Logf("✓ A stored fix invalidates cached feeds")
}

func TestCaptureAgentAgainstBackend(t *testing.T) {
	b := newTestBackend(t)
	c := b.client(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "ana", "secret"); err != nil {
		t.Fatal(err)
	}

	provider := &capture.SimulatedProvider{Clock: b.clock, Latitude: 42.69, Longitude: 23.32, SpeedMPS: 1.2}
	agent := capture.NewAgent(provider, c, capture.WithInterval(30*time.Second, 15*time.Second))
	if err := agent.Start("SUR001"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.clock.Advance(60 * time.Second)
	agent.Wait()
	agent.Stop()

	track, err := c.FetchTrack(ctx, "SUR001", t0, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("FetchTrack: %v", err)
	}
	if len(track) != 3 {
		t.Errorf("backend holds %d fixes, want 3", len(track))
	}
	if st := agent.Stats(); st.Pushed != 3 || st.Failed != 0 {
		t.Errorf("stats = %+v", st)
	}
	t.Logf("✓ The capture agent's fixes land in the backend")
}

func TestDashboardAgainstBackend(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.store.SaveFix(ctx, fixAt("SUR001", time.Duration(i-3)*time.Minute, 42+float64(i)/100))
	}
	_ = b.store.SaveFix(ctx, fixAt("SUR002", -2*time.Hour, 42.15))

	c := b.client(t)
	d := dashboard.New(c, polling.NewController(b.clock, nil), dashboard.WithClock(b.clock))
	defer d.Close()

	d.Start(ctx)
	d.Wait()
	snap := d.Snapshot()
	if !snap.LatestLoaded || len(snap.Latest) != 2 {
		t.Fatalf("latest = %+v (loaded %v)", snap.Latest, snap.LatestLoaded)
	}
	if snap.Status["SUR001"] != model.Online || snap.Status["SUR002"] != model.Offline {
		t.Errorf("status = %v", snap.Status)
	}
	if names := d.Surveyors("", ""); len(names) != 2 {
		t.Errorf("surveyors = %+v", names)
	}

	res, err := d.RequestHistorical(ctx, "SUR001", t0.Add(-time.Hour), t0)
	if err != nil || res.Empty || len(res.Fixes) != 3 {
		t.Fatalf("RequestHistorical = %+v, %v", res, err)
	}
	if res.Route.LengthKM <= 0 {
		t.Errorf("route length = %v", res.Route.LengthKM)
	}
	if d.Mode().Kind != dashboard.Historical {
		t.Errorf("mode = %s", d.Mode())
	}

	empty, err := d.RequestHistorical(ctx, "SUR002", t0.Add(-time.Hour), t0)
	if err != nil || !empty.Empty {
		t.Fatalf("empty range = %+v, %v", empty, err)
	}
	if d.Mode().Kind != dashboard.Historical || d.Mode().SurveyorID != "SUR001" {
		t.Errorf("empty result changed the mode to %s", d.Mode())
	}

	if err := d.SelectSurveyor("SUR002"); err != nil {
		t.Fatal(err)
	}
	d.Wait()
	snap = d.Snapshot()
	if snap.Live == nil || snap.Live.Fix.SurveyorID != "SUR002" || snap.Live.Name != "Boris Ivanov" {
		t.Errorf("live marker = %+v", snap.Live)
	}
	t.Logf("✓ The dashboard state machine runs against the backend")
}
