package opentmi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentmi/opentmi-go/pkg/log"
	"github.com/opentmi/opentmi-go/pkg/transport"
)

// newTestClient points a client at the given test server.
func newTestClient(ts *httptest.Server) *Client {
	return New(ts.URL, 0)
}

// clearLoginEnv blanks the automatic-login environment variables so a
// developer's shell cannot leak credentials into a test.
func clearLoginEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvGithubAccessToken, "")
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
}

func TestLogin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %s, want /auth/login", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["email"] != "user@example.com" || payload["password"] != "secret" {
			t.Errorf("payload = %v", payload)
		}
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	if client.IsLoggedIn() {
		t.Error("IsLoggedIn() = true before login")
	}
	if err := client.Login(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !client.IsLoggedIn() {
		t.Error("IsLoggedIn() = false after login")
	}

	client.Logout()
	if client.IsLoggedIn() {
		t.Error("IsLoggedIn() = true after logout")
	}
}

func TestLoginWithAccessToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/github/token" {
			t.Errorf("path = %s, want /auth/github/token", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["access_token"] != "gh-token" {
			t.Errorf("access_token = %q", payload["access_token"])
		}
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	if err := client.LoginWithAccessToken(context.Background(), "gh-token", ""); err != nil {
		t.Fatalf("LoginWithAccessToken() error = %v", err)
	}
	if !client.IsLoggedIn() {
		t.Error("IsLoggedIn() = false after token login")
	}
}

func TestLoginFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid credentials"))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	err := client.Login(context.Background(), "user@example.com", "wrong")
	var terr *transport.Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *transport.Error", err)
	}
	if terr.Code != http.StatusUnauthorized {
		t.Errorf("Code = %d, want 401", terr.Code)
	}
	if client.IsLoggedIn() {
		t.Error("IsLoggedIn() = true after failed login")
	}
}

func TestTryLoginFromEnv(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/github/token" {
			t.Errorf("path = %s, want /auth/github/token", r.URL.Path)
		}
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer ts.Close()

	t.Setenv(EnvGithubAccessToken, "gh-token")

	client := newTestClient(ts)
	if err := client.TryLogin(context.Background(), true); err != nil {
		t.Fatalf("TryLogin() error = %v", err)
	}
	if !client.IsLoggedIn() {
		t.Error("IsLoggedIn() = false after env login")
	}
}

func TestTryLoginWithoutCredentials(t *testing.T) {
	clearLoginEnv(t)

	client := New("localhost", 3000)
	if err := client.TryLogin(context.Background(), false); err != nil {
		t.Errorf("TryLogin(required=false) error = %v, want nil", err)
	}
	if err := client.TryLogin(context.Background(), true); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("TryLogin(required=true) error = %v, want ErrLoginRequired", err)
	}
}

func TestPostResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/results" {
			t.Errorf("path = %s, want /api/v0/results", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer abc" {
			t.Errorf("Authorization = %q, want Bearer abc", r.Header.Get("Authorization"))
		}
		var result Result
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		if result.TestcaseID != "sample-test" {
			t.Errorf("tcid = %q, want sample-test", result.TestcaseID)
		}
		result.ID = "5f2a000000000000000000aa"
		json.NewEncoder(w).Encode(result)
	}))
	defer ts.Close()

	client := newTestClient(ts).SetToken("abc")
	result := Result{
		TestcaseID: "sample-test",
		Execution:  &Execution{Verdict: "pass"},
	}
	stored, err := client.PostResult(context.Background(), result)
	if err != nil {
		t.Fatalf("PostResult() error = %v", err)
	}
	if stored.ID != "5f2a000000000000000000aa" {
		t.Errorf("ID = %q", stored.ID)
	}
	if stored.Execution == nil || stored.Execution.Verdict != "pass" {
		t.Errorf("Execution = %+v, want verdict pass", stored.Execution)
	}
}

// A result without an execution must not serialize an empty "exec" object.
func TestResultMarshalOmitsEmptyExecution(t *testing.T) {
	data, err := json.Marshal(Result{TestcaseID: "tc-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["exec"]; ok {
		t.Errorf("exec present in %s, want omitted", data)
	}
}

func TestPostResultRequiresLogin(t *testing.T) {
	clearLoginEnv(t)

	client := New("localhost", 3000)
	_, err := client.PostResult(context.Background(), Result{TestcaseID: "tc"})
	if !errors.Is(err, ErrLoginRequired) {
		t.Errorf("error = %v, want ErrLoginRequired", err)
	}
}

func TestTestcases(t *testing.T) {
	clearLoginEnv(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/testcases" {
			t.Errorf("path = %s, want /api/v0/testcases", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "released" {
			t.Errorf("status filter = %q, want released", r.URL.Query().Get("status"))
		}
		w.Write([]byte(`[{"_id":"5f2a000000000000000000aa","tcid":"tc-1"},{"_id":"5f2a000000000000000000ab","tcid":"tc-2"}]`))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	testcases, err := client.Testcases(context.Background(), map[string]string{"status": "released"})
	if err != nil {
		t.Fatalf("Testcases() error = %v", err)
	}
	if len(testcases) != 2 {
		t.Fatalf("len = %d, want 2", len(testcases))
	}
	if testcases[0].TcID != "tc-1" {
		t.Errorf("TcID = %q, want tc-1", testcases[0].TcID)
	}
}

func TestTestcasesLogsInFromEnv(t *testing.T) {
	clearLoginEnv(t)

	loggedIn := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loggedIn = true
			w.Write([]byte(`{"token":"abc"}`))
		case "/api/v0/testcases":
			if r.Header.Get("Authorization") != "Bearer abc" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"no access"}`))
				return
			}
			w.Write([]byte(`[{"_id":"5f2a000000000000000000aa","tcid":"tc-1"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	t.Setenv(EnvUsername, "user@example.com")
	t.Setenv(EnvPassword, "secret")

	client := newTestClient(ts)
	testcases, err := client.Testcases(context.Background(), nil)
	if err != nil {
		t.Fatalf("Testcases() error = %v", err)
	}
	if !loggedIn {
		t.Error("no login attempt before the read")
	}
	if len(testcases) != 1 || testcases[0].TcID != "tc-1" {
		t.Errorf("testcases = %v", testcases)
	}
}

func TestCampaignNames(t *testing.T) {
	clearLoginEnv(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f") != "name" || r.URL.Query().Get("t") != "distinct" {
			t.Errorf("query = %v, want f=name&t=distinct", r.URL.Query())
		}
		w.Write([]byte(`["nightly","release"]`))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	names, err := client.CampaignNames(context.Background())
	if err != nil {
		t.Fatalf("CampaignNames() error = %v", err)
	}
	if len(names) != 2 || names[0] != "nightly" {
		t.Errorf("names = %v", names)
	}
}

func TestLookupTestcase(t *testing.T) {
	clearLoginEnv(t)

	tests := []struct {
		name      string
		response  string
		status    int
		wantFound bool
	}{
		{"single match", `[{"_id":"5f2a000000000000000000aa","tcid":"tc-1"}]`, 200, true},
		{"no match", `[]`, 200, false},
		{"ambiguous match", `[{"tcid":"tc-1"},{"tcid":"tc-1"}]`, 200, false},
		{"not found", ``, 404, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 200 {
					w.WriteHeader(tt.status)
					return
				}
				w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			client := newTestClient(ts)
			tc, err := client.LookupTestcase(context.Background(), "tc-1")
			if err != nil {
				t.Fatalf("LookupTestcase() error = %v", err)
			}
			if (tc != nil) != tt.wantFound {
				t.Errorf("found = %v, want %v", tc != nil, tt.wantFound)
			}
		})
	}
}

func TestUpdateTestcase(t *testing.T) {
	t.Run("updates existing", func(t *testing.T) {
		var gotPut bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet:
				w.Write([]byte(`[{"_id":"5f2a000000000000000000aa","tcid":"tc-1"}]`))
			case r.Method == http.MethodPut:
				gotPut = true
				if r.URL.Path != "/api/v0/testcases/5f2a000000000000000000aa" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.Write([]byte(`{"_id":"5f2a000000000000000000aa","tcid":"tc-1","name":"renamed"}`))
			default:
				t.Errorf("unexpected method %s", r.Method)
			}
		}))
		defer ts.Close()

		client := newTestClient(ts).SetToken("abc")
		stored, err := client.UpdateTestcase(context.Background(), Testcase{TcID: "tc-1", Name: "renamed"})
		if err != nil {
			t.Fatalf("UpdateTestcase() error = %v", err)
		}
		if !gotPut {
			t.Error("expected a PUT for the existing testcase")
		}
		if stored.Name != "renamed" {
			t.Errorf("Name = %q, want renamed", stored.Name)
		}
	})

	t.Run("creates missing", func(t *testing.T) {
		var gotPost bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				w.Write([]byte(`[]`))
			case http.MethodPost:
				gotPost = true
				w.Write([]byte(`{"_id":"5f2a000000000000000000ab","tcid":"tc-2"}`))
			default:
				t.Errorf("unexpected method %s", r.Method)
			}
		}))
		defer ts.Close()

		client := newTestClient(ts).SetToken("abc")
		stored, err := client.UpdateTestcase(context.Background(), Testcase{TcID: "tc-2"})
		if err != nil {
			t.Fatalf("UpdateTestcase() error = %v", err)
		}
		if !gotPost {
			t.Error("expected a POST for the missing testcase")
		}
		if stored.ID != "5f2a000000000000000000ab" {
			t.Errorf("ID = %q", stored.ID)
		}
	})
}

func TestUploadResultEnsuresTestcase(t *testing.T) {
	var createdTestcase, postedResult bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v0/testcases":
			w.Write([]byte(`[]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v0/testcases":
			createdTestcase = true
			w.Write([]byte(`{"_id":"5f2a000000000000000000aa","tcid":"tc-1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v0/results":
			postedResult = true
			w.Write([]byte(`{"_id":"5f2a000000000000000000ff","tcid":"tc-1"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	client := newTestClient(ts).SetToken("abc")
	result := Result{TestcaseID: "tc-1", Execution: &Execution{Verdict: "pass"}}
	stored, err := client.UploadResult(context.Background(), result, Testcase{TcID: "tc-1"})
	if err != nil {
		t.Fatalf("UploadResult() error = %v", err)
	}
	if !createdTestcase {
		t.Error("testcase was not created")
	}
	if !postedResult {
		t.Error("result was not posted")
	}
	if stored.ID != "5f2a000000000000000000ff" {
		t.Errorf("ID = %q", stored.ID)
	}
}

func TestSuite(t *testing.T) {
	clearLoginEnv(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v0/campaigns":
			w.Write([]byte(`[{"_id":"5f2a000000000000000000aa","name":"nightly"}]`))
		case "/api/v0/campaigns/5f2a000000000000000000aa/suite":
			w.Write([]byte(`{"name":"nightly","testcases":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	client := newTestClient(ts)

	t.Run("by name", func(t *testing.T) {
		suite, err := client.Suite(context.Background(), "nightly")
		if err != nil {
			t.Fatalf("Suite() error = %v", err)
		}
		if suite == nil {
			t.Fatal("suite = nil")
		}
	})

	t.Run("by object id skips lookup", func(t *testing.T) {
		suite, err := client.Suite(context.Background(), "5f2a000000000000000000aa")
		if err != nil {
			t.Fatalf("Suite() error = %v", err)
		}
		if suite == nil {
			t.Fatal("suite = nil")
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		suite, err := client.Suite(context.Background(), "no-such-campaign")
		if err != nil {
			t.Fatalf("Suite() error = %v", err)
		}
		if suite != nil {
			t.Errorf("suite = %s, want nil", suite)
		}
	})
}

// recordingLogger captures warn entries for assertions.
type recordingLogger struct {
	warns []warnEntry
}

type warnEntry struct {
	msg    string
	fields []log.Field
}

func (l *recordingLogger) Debug(msg string, fields ...log.Field) {}
func (l *recordingLogger) Info(msg string, fields ...log.Field)  {}
func (l *recordingLogger) Error(msg string, fields ...log.Field) {}

func (l *recordingLogger) Warn(msg string, fields ...log.Field) {
	l.warns = append(l.warns, warnEntry{msg: msg, fields: fields})
}

func (l *recordingLogger) hasField(key string) bool {
	for _, w := range l.warns {
		for _, f := range w.fields {
			if f.Key == key {
				return true
			}
		}
	}
	return false
}

func TestWireErrorLogging(t *testing.T) {
	clearLoginEnv(t)

	t.Run("http failure logs status code", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
		}))
		defer ts.Close()

		logger := &recordingLogger{}
		client := New(ts.URL, 0, WithLogger(logger))
		if _, err := client.Testcases(context.Background(), nil); err == nil {
			t.Fatal("Testcases() error = nil, want error")
		}
		if len(logger.warns) == 0 {
			t.Fatal("no warn logged for http failure")
		}
		if !logger.hasField("code") {
			t.Error("warn for http failure has no code field")
		}
	})

	t.Run("network failure logs no code", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := ts.URL
		ts.Close()

		logger := &recordingLogger{}
		client := New(url, 0, WithLogger(logger))
		if _, err := client.Testcases(context.Background(), nil); err == nil {
			t.Fatal("Testcases() error = nil, want error")
		}
		if len(logger.warns) == 0 {
			t.Fatal("no warn logged for network failure")
		}
		if logger.hasField("code") {
			t.Error("warn for network failure carries a code field")
		}
	})
}

func TestIsObjectID(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"5f2a000000000000000000aa", true},
		{"5F2A000000000000000000AA", true},
		{"nightly", false},
		{"", false},
		{"5f2a000000000000000000a", false},
		{"5f2a000000000000000000aaa", false},
	}

	for _, tt := range tests {
		if got := isObjectID(tt.value); got != tt.want {
			t.Errorf("isObjectID(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
