package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	graphBaseURL    = "https://graph.microsoft.com/v1.0"
	tokenURLPattern = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	directoryScope  = "https://graph.microsoft.com/.default"

	userSelectFields = "id,displayName,mail,userPrincipalName,givenName,surname,jobTitle,department,companyName,officeLocation"
)

// DirectoryUser is one record from the external directory.
type DirectoryUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	JobTitle          string `json:"jobTitle"`
	Department        string `json:"department"`
	CompanyName       string `json:"companyName"`
	OfficeLocation    string `json:"officeLocation"`
}

// Email prefers the mailbox address, falling back to the principal name.
func (u DirectoryUser) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// Directory is the external identity lookup the resolver falls back to.
type Directory interface {
	Get(ctx context.Context, idOrPrincipal string) (*DirectoryUser, error)
	Search(ctx context.Context, terms SearchTerms, limit int) ([]DirectoryUser, error)
}

// DirectoryConfig holds the Microsoft Graph application credentials.
type DirectoryConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       hclog.Logger
}

// DirectoryClient talks to Microsoft Graph with client-credentials
// auth. The access token is cached until it expires.
type DirectoryClient struct {
	cfg    DirectoryConfig
	http   *http.Client
	logger hclog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewDirectoryClient validates the credentials and builds the client.
func NewDirectoryClient(cfg DirectoryConfig) (*DirectoryClient, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("directory credentials are incomplete")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &DirectoryClient{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: cfg.Logger.Named("directory"),
	}, nil
}

func (c *DirectoryClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {directoryScope},
	}

	tokenURL := fmt.Sprintf(tokenURLPattern, c.cfg.TenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}

	c.token = payload.AccessToken
	// Renew a minute early.
	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 5 * time.Minute
	}
	c.tokenExpiry = time.Now().Add(ttl - time.Minute)
	return c.token, nil
}

// Get fetches a single user by object id or principal name. A 404 is
// returned as (nil, nil).
func (c *DirectoryClient) Get(ctx context.Context, idOrPrincipal string) (*DirectoryUser, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := graphBaseURL + "/users/" + url.PathEscape(idOrPrincipal) + "?$select=" + userSelectFields
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user lookup returned %d", resp.StatusCode)
	}

	var user DirectoryUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}

// Search runs one $filter query combining startsWith clauses over
// displayName, givenName, surname, mail and userPrincipalName.
func (c *DirectoryClient) Search(ctx context.Context, terms SearchTerms, limit int) ([]DirectoryUser, error) {
	filter := buildDirectoryFilter(terms)
	if filter == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"$filter": {filter},
		"$select": {userSelectFields},
		"$top":    {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+"/users?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ConsistencyLevel", "eventual")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory search returned %d", resp.StatusCode)
	}

	var payload struct {
		Value []DirectoryUser `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return payload.Value, nil
}

func buildDirectoryFilter(terms SearchTerms) string {
	var parts []string
	add := func(field, prefix string) {
		if prefix == "" {
			return
		}
		parts = append(parts, fmt.Sprintf("startsWith(%s,'%s')", field, escapeOData(prefix)))
	}

	add("mail", terms.EmailPrefix)
	add("userPrincipalName", terms.EmailPrefix)
	add("displayName", terms.First)
	add("givenName", terms.First)
	add("displayName", terms.First2)
	add("displayName", terms.Last)
	add("surname", terms.Last)

	return strings.Join(parts, " or ")
}

func escapeOData(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
