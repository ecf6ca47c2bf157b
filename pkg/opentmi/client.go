package opentmi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/opentmi/opentmi-go/pkg/log"
	"github.com/opentmi/opentmi-go/pkg/transport"
)

// apiPrefix is the versioned API path prefix.
const apiPrefix = "/api/v0"

// Environment variables used for automatic login.
const (
	EnvGithubAccessToken = "OPENTMI_GITHUB_ACCESS_TOKEN"
	EnvUsername          = "OPENTMI_USERNAME"
	EnvPassword          = "OPENTMI_PASSWORD"
)

// ErrLoginRequired is returned when an operation needs authentication
// and no token is available, not even through environment variables.
var ErrLoginRequired = errors.New("opentmi: login required")

// Client is a high-level OpenTMI API client.
// It composes a Transport for the wire layer and exposes typed
// operations for results, builds, events, test cases and campaigns.
type Client struct {
	transport *transport.Transport
	logger    log.Logger
}

// New creates an OpenTMI client for the given host and port.
// A host of "" defaults to localhost, a port of 0 to 3000.
func New(host string, port int, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.transport == nil {
		tOpts := []transport.Option{transport.WithLogger(o.logger)}
		if o.httpClient != nil {
			tOpts = append(tOpts, transport.WithHTTPClient(o.httpClient))
		}
		o.transport = transport.New(host, port, tOpts...)
	}

	return &Client{
		transport: o.transport,
		logger:    o.logger,
	}
}

// Login authenticates against the OpenTMI server with email and password.
// The returned token is stored for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) error {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	data, err := c.transport.PostJSON(ctx, c.transport.URL("/auth/login"), payload, nil)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return c.storeToken(data)
}

// LoginWithAccessToken authenticates using a third-party access token.
// The service names the token provider, e.g. "github".
func (c *Client) LoginWithAccessToken(ctx context.Context, accessToken, service string) error {
	if service == "" {
		service = "github"
	}
	payload := map[string]string{
		"access_token": accessToken,
	}
	c.logger.Debug("login using access token", log.String("service", service))
	u := c.transport.URL("/auth/" + service + "/token")
	data, err := c.transport.PostJSON(ctx, u, payload, nil)
	if err != nil {
		return fmt.Errorf("login with access token: %w", err)
	}
	return c.storeToken(data)
}

// storeToken extracts the token from a login response and stores it.
func (c *Client) storeToken(data json.RawMessage) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}
	if resp.Token == "" {
		return errors.New("opentmi: login response carries no token")
	}
	c.transport.SetToken(resp.Token)
	c.logger.Info("login success")
	return nil
}

// TryLogin attempts a login from environment variables.
// OPENTMI_GITHUB_ACCESS_TOKEN is preferred, then OPENTMI_USERNAME and
// OPENTMI_PASSWORD. With required false a missing credential is not an
// error; a failing login always is.
func (c *Client) TryLogin(ctx context.Context, required bool) error {
	if token := os.Getenv(EnvGithubAccessToken); token != "" {
		c.logger.Info("using github access token from environment variable")
		return c.LoginWithAccessToken(ctx, token, "github")
	}
	username := os.Getenv(EnvUsername)
	password := os.Getenv(EnvPassword)
	if username != "" && password != "" {
		c.logger.Info("using opentmi credentials from environment variable")
		return c.Login(ctx, username, password)
	}
	if required {
		return ErrLoginRequired
	}
	return nil
}

// IsLoggedIn reports whether an authentication token is stored.
func (c *Client) IsLoggedIn() bool {
	return c.transport.HasToken()
}

// Logout clears the stored authentication token.
func (c *Client) Logout() {
	c.transport.ClearToken()
}

// SetToken stores a pre-acquired authentication token.
func (c *Client) SetToken(token string) *Client {
	c.transport.SetToken(token)
	return c
}

// Host returns the resolved base URL of the server.
func (c *Client) Host() string {
	return c.transport.Host()
}

// PostResult uploads a test result, with optional file attachments
// (e.g. zipped logs).
func (c *Client) PostResult(ctx context.Context, result Result, files ...transport.File) (*Result, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	data, err := c.postJSON(ctx, "/results", result, files)
	if err != nil {
		return nil, err
	}
	var stored Result
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	c.logger.Debug("result uploaded successfully", log.String("_id", stored.ID))
	return &stored, nil
}

// PostBuild uploads a build document.
func (c *Client) PostBuild(ctx context.Context, build Build) (*Build, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	data, err := c.postJSON(ctx, "/duts/builds", build, nil)
	if err != nil {
		return nil, err
	}
	var stored Build
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse build: %w", err)
	}
	c.logger.Debug("build uploaded successfully", log.String("_id", stored.ID))
	return &stored, nil
}

// PostEvent uploads an event document.
func (c *Client) PostEvent(ctx context.Context, event Event) (*Event, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	data, err := c.postJSON(ctx, "/events", event, nil)
	if err != nil {
		return nil, err
	}
	var stored Event
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	c.logger.Debug("event uploaded successfully", log.String("_id", stored.ID))
	return &stored, nil
}

// PostResource uploads a resource document.
func (c *Client) PostResource(ctx context.Context, resource Resource) (*Resource, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	data, err := c.postJSON(ctx, "/resources", resource, nil)
	if err != nil {
		return nil, err
	}
	var stored Resource
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse resource: %w", err)
	}
	c.logger.Debug("resource uploaded successfully", log.String("_id", stored.ID))
	return &stored, nil
}

// Testcases fetches test cases matching the given filters.
func (c *Client) Testcases(ctx context.Context, filters map[string]string) ([]Testcase, error) {
	if err := c.tryEnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	data, err := c.getJSON(ctx, "/testcases", toValues(filters))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var testcases []Testcase
	if err := json.Unmarshal(data, &testcases); err != nil {
		return nil, fmt.Errorf("parse testcases: %w", err)
	}
	return testcases, nil
}

// Resources fetches resources matching the given filters.
func (c *Client) Resources(ctx context.Context, filters map[string]string) ([]Resource, error) {
	if err := c.tryEnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	data, err := c.getJSON(ctx, "/resources", toValues(filters))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var resources []Resource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	return resources, nil
}

// Campaigns fetches all campaigns.
func (c *Client) Campaigns(ctx context.Context) ([]Campaign, error) {
	data, err := c.getJSON(ctx, "/campaigns", nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var campaigns []Campaign
	if err := json.Unmarshal(data, &campaigns); err != nil {
		return nil, fmt.Errorf("parse campaigns: %w", err)
	}
	return campaigns, nil
}

// CampaignNames fetches the distinct names of all campaigns.
func (c *Client) CampaignNames(ctx context.Context) ([]string, error) {
	if err := c.tryEnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("f", "name")
	params.Set("t", "distinct")
	data, err := c.getJSON(ctx, "/campaigns", params)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse campaign names: %w", err)
	}
	return names, nil
}

// Suite fetches the suite document for a campaign, by name or ObjectID.
// The suite shape is owned by the server, so the raw document is returned.
func (c *Client) Suite(ctx context.Context, campaign string) (json.RawMessage, error) {
	if err := c.tryEnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	id, err := c.campaignID(ctx, campaign)
	if err != nil {
		return nil, err
	}
	if id == "" {
		c.logger.Warn("could not resolve campaign id", log.String("campaign", campaign))
		return nil, nil
	}
	return c.getJSON(ctx, "/campaigns/"+id+"/suite", nil)
}

// campaignID resolves a campaign name to its ObjectID.
// A value that already looks like an ObjectID is taken as-is.
func (c *Client) campaignID(ctx context.Context, name string) (string, error) {
	if isObjectID(name) {
		return name, nil
	}
	campaigns, err := c.Campaigns(ctx)
	if err != nil {
		return "", err
	}
	for _, campaign := range campaigns {
		if campaign.Name == name {
			return campaign.ID, nil
		}
	}
	return "", nil
}

// LookupTestcase finds a single test case by its tcid.
// Returns nil when the test case does not exist.
func (c *Client) LookupTestcase(ctx context.Context, tcid string) (*Testcase, error) {
	c.logger.Debug("search testcase", log.String("tcid", tcid))
	testcases, err := c.Testcases(ctx, map[string]string{"tcid": tcid})
	if err != nil {
		return nil, err
	}
	if len(testcases) != 1 {
		return nil, nil
	}
	c.logger.Debug("testcase exists",
		log.String("tcid", tcid),
		log.String("_id", testcases[0].ID))
	return &testcases[0], nil
}

// UpdateTestcase updates an existing test case by tcid, or creates it
// when not stored yet.
func (c *Client) UpdateTestcase(ctx context.Context, tc Testcase) (*Testcase, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	existing, err := c.LookupTestcase(ctx, tc.TcID)
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if existing != nil {
		c.logger.Info("update existing testcase", log.String("_id", existing.ID))
		data, err = c.putJSON(ctx, "/testcases/"+existing.ID, tc)
	} else {
		c.logger.Info("create new testcase")
		data, err = c.postJSON(ctx, "/testcases", tc, nil)
	}
	if err != nil {
		return nil, err
	}

	var stored Testcase
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse testcase: %w", err)
	}
	return &stored, nil
}

// UploadResult uploads a result, creating the test case first when it
// does not exist yet.
func (c *Client) UploadResult(ctx context.Context, result Result, tc Testcase) (*Result, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	existing, err := c.LookupTestcase(ctx, tc.TcID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if _, err := c.postJSON(ctx, "/testcases", tc, nil); err != nil {
			return nil, fmt.Errorf("create testcase: %w", err)
		}
	}
	return c.PostResult(ctx, result)
}

// ensureLoggedIn checks for a stored token and falls back to the
// environment-variable login before failing with ErrLoginRequired.
func (c *Client) ensureLoggedIn(ctx context.Context) error {
	if c.transport.HasToken() {
		return nil
	}
	if err := c.TryLogin(ctx, false); err != nil {
		return err
	}
	if !c.transport.HasToken() {
		return ErrLoginRequired
	}
	return nil
}

// tryEnsureLoggedIn attempts the environment-variable login when no
// token is stored. Read operations use this: a missing credential is
// not an error, but a failing login attempt is.
func (c *Client) tryEnsureLoggedIn(ctx context.Context) error {
	if c.transport.HasToken() {
		return nil
	}
	return c.TryLogin(ctx, false)
}

// apiURL resolves a path under the versioned API prefix.
func (c *Client) apiURL(path string) string {
	return c.transport.URL(apiPrefix + path)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	data, err := c.transport.GetJSON(ctx, c.apiURL(path), params)
	if err != nil {
		c.logWireError("get failed", err)
		return nil, err
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, files []transport.File) (json.RawMessage, error) {
	data, err := c.transport.PostJSON(ctx, c.apiURL(path), payload, files)
	if err != nil {
		c.logWireError("post failed", err)
		return nil, err
	}
	return data, nil
}

func (c *Client) putJSON(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	data, err := c.transport.PutJSON(ctx, c.apiURL(path), payload)
	if err != nil {
		c.logWireError("put failed", err)
		return nil, err
	}
	return data, nil
}

// logWireError warn-logs a transport failure with its status code when present.
// Only HTTP failures carry a status code.
func (c *Client) logWireError(msg string, err error) {
	var terr *transport.Error
	if errors.As(err, &terr) {
		fields := []log.Field{log.String("message", terr.Message)}
		if terr.Kind == transport.KindHTTP {
			fields = append(fields, log.Int("code", terr.Code))
		}
		c.logger.Warn(msg, fields...)
		return
	}
	c.logger.Warn(msg, log.Err(err))
}

// toValues converts a filter map to URL query values.
func toValues(filters map[string]string) url.Values {
	if len(filters) == 0 {
		return nil
	}
	params := url.Values{}
	for k, v := range filters {
		params.Set(k, v)
	}
	return params
}
