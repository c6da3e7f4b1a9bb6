package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"orgsync/pkg/model"
)

// WebClient drives the web interface for organization settings that no API
// exposes. A client is logged in once and reused for every read and write of
// its session.
type WebClient interface {
	ReadSettings(ctx context.Context, org string, fields []string) (model.Payload, error)
	WriteSettings(ctx context.Context, org string, settings model.Payload) error
	Close() error
}

// WebClientFactory logs in to the web interface at baseURL
type WebClientFactory func(ctx context.Context, baseURL string, creds Credentials) (WebClient, error)

// ErrWebDisabled is returned for web settings when no web client is configured
var ErrWebDisabled = errors.New("web interface disabled")

// webSetting locates one setting in the organization settings pages
type webSetting struct {
	page     string
	selector string
}

var webSettings = map[string]webSetting{
	"readers_can_create_discussions":           {"member_privileges", "#organization_readers_can_create_discussions"},
	"members_can_change_repo_visibility":       {"member_privileges", "#organization_members_can_change_repo_visibility"},
	"members_can_delete_repositories":          {"member_privileges", "#organization_members_can_delete_repositories"},
	"members_can_delete_issues":                {"member_privileges", "#organization_members_can_delete_issues"},
	"members_can_create_teams":                 {"member_privileges", "#organization_members_can_create_teams"},
	"members_can_invite_outside_collaborators": {"member_privileges", "#organization_members_can_invite_outside_collaborators"},
	"display_commenter_full_name":              {"member_privileges", "#organization_display_commenter_full_name_setting_enabled"},
	"default_branch_name":                      {"repository-defaults", "#default_branch"},
	"packages_containers_public":               {"packages", "#packages_containers_public"},
	"packages_containers_internal":             {"packages", "#packages_containers_internal"},
}

// webFields returns the organization fields only the web interface manages
func webFields() []string {
	var out []string
	for _, f := range model.OrganizationSchema.Fields {
		if f.Source == model.SourceWeb {
			out = append(out, f.Name)
		}
	}
	return out
}

// settingsByPage groups fields by the page holding them, in a stable order
func settingsByPage(fields []string) ([]string, map[string][]string, error) {
	byPage := map[string][]string{}
	for _, f := range fields {
		ws, ok := webSettings[f]
		if !ok {
			return nil, nil, fmt.Errorf("no web location for setting %q", f)
		}
		byPage[ws.page] = append(byPage[ws.page], f)
	}
	pages := make([]string, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
		sort.Strings(byPage[p])
	}
	sort.Strings(pages)
	return pages, byPage, nil
}

// webClient returns the session's web client, logging in on first use. A
// failed login is remembered so the session does not retry it.
func (s *Session) webClient(ctx context.Context) (WebClient, error) {
	s.webMu.Lock()
	defer s.webMu.Unlock()

	if s.web != nil {
		return s.web, nil
	}
	if s.webErr != nil {
		return nil, s.webErr
	}
	if s.p.web == nil {
		s.webErr = ErrWebDisabled
		return nil, s.webErr
	}

	s.logger.Debug().Str("url", s.p.cfg.WebURL).Msg("Starting web session")
	err := s.p.pool.Do(ctx, func() error {
		client, err := s.p.web(ctx, s.p.cfg.WebURL, s.creds)
		if err != nil {
			return err
		}
		s.web = client
		return nil
	})
	if err != nil {
		s.webErr = fmt.Errorf("failed to log in to the web interface: %w", err)
		return nil, s.webErr
	}
	return s.web, nil
}

func (s *Session) fetchWebSettings(ctx context.Context) (model.Payload, error) {
	client, err := s.webClient(ctx)
	if err != nil {
		return nil, err
	}
	var out model.Payload
	err = s.p.pool.Do(ctx, func() error {
		var err error
		out, err = client.ReadSettings(ctx, s.org, webFields())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read web settings: %w", err)
	}
	return out, nil
}

// UpdateOrganizationWebSettings writes settings only the web interface manages
func (s *Session) UpdateOrganizationWebSettings(ctx context.Context, p model.Payload) error {
	client, err := s.webClient(ctx)
	if err != nil {
		return err
	}
	err = s.p.pool.Do(ctx, func() error {
		return client.WriteSettings(ctx, s.org, p)
	})
	if err != nil {
		return fmt.Errorf("failed to write web settings: %w", err)
	}
	return nil
}

// chromeClient is a WebClient backed by a headless Chrome tab
type chromeClient struct {
	baseURL string
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewChromeWebClient starts a headless browser and logs in with the
// credentials' username, password and one-time password
func NewChromeWebClient(ctx context.Context, baseURL string, creds Credentials) (WebClient, error) {
	username, err := creds.Username()
	if err != nil {
		return nil, &Error{Type: ErrorTypeAuth, Message: "no web username available", Cause: err}
	}
	password, err := creds.Password()
	if err != nil {
		return nil, &Error{Type: ErrorTypeAuth, Message: "no web password available", Cause: err}
	}
	if username == "" || password == "" {
		return nil, &Error{Type: ErrorTypeAuth, Message: "web credentials not configured"}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", true),
	)
	// the browser outlives the call that started it
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	c := &chromeClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ctx:     tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		timeout: time.Minute,
	}

	// the first run starts the browser and must use the tab context itself
	if err := chromedp.Run(tabCtx); err != nil {
		c.cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	if err := c.login(ctx, username, password, creds); err != nil {
		c.cancel()
		return nil, err
	}
	return c, nil
}

func (c *chromeClient) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *chromeClient) login(ctx context.Context, username, password string, creds Credentials) error {
	var location string
	err := c.run(ctx,
		chromedp.Navigate(c.baseURL+"/login"),
		chromedp.WaitVisible("#login_field", chromedp.ByQuery),
		chromedp.SendKeys("#login_field", username, chromedp.ByQuery),
		chromedp.SendKeys("#password", password, chromedp.ByQuery),
		chromedp.Click(`input[name="commit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	if strings.Contains(location, "/sessions/two-factor") {
		otp, err := creds.OTP()
		if err != nil {
			return &Error{Type: ErrorTypeAuth, Message: "no one-time password available", Cause: err}
		}
		err = c.run(ctx,
			chromedp.WaitVisible("#app_totp", chromedp.ByQuery),
			chromedp.SendKeys("#app_totp", otp, chromedp.ByQuery),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Location(&location),
		)
		if err != nil {
			return fmt.Errorf("failed to submit one-time password: %w", err)
		}
	}

	if strings.Contains(location, "/login") || strings.Contains(location, "/session") {
		return &Error{Type: ErrorTypeAuth, Message: "web login rejected"}
	}
	return nil
}

func (c *chromeClient) settingsURL(org, page string) string {
	return fmt.Sprintf("%s/organizations/%s/settings/%s", c.baseURL, org, page)
}

// ReadSettings reads each field from its settings page, one navigation per page
func (c *chromeClient) ReadSettings(ctx context.Context, org string, fields []string) (model.Payload, error) {
	pages, byPage, err := settingsByPage(fields)
	if err != nil {
		return nil, err
	}

	out := model.Payload{}
	for _, page := range pages {
		actions := []chromedp.Action{
			chromedp.Navigate(c.settingsURL(org, page)),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}
		values := make([]any, len(byPage[page]))
		for i, f := range byPage[page] {
			actions = append(actions, chromedp.Evaluate(readExpr(webSettings[f].selector), &values[i]))
		}
		if err := c.run(ctx, actions...); err != nil {
			return nil, fmt.Errorf("failed to read settings page %s: %w", page, err)
		}
		for i, f := range byPage[page] {
			if values[i] == nil {
				return nil, fmt.Errorf("setting %s not found on page %s", f, page)
			}
			out[f] = values[i]
		}
	}
	return out, nil
}

// WriteSettings changes each setting and submits the form holding it
func (c *chromeClient) WriteSettings(ctx context.Context, org string, settings model.Payload) error {
	fields := make([]string, 0, len(settings))
	for f := range settings {
		fields = append(fields, f)
	}
	pages, byPage, err := settingsByPage(fields)
	if err != nil {
		return err
	}

	for _, page := range pages {
		for _, f := range byPage[page] {
			var ok bool
			err := c.run(ctx,
				chromedp.Navigate(c.settingsURL(org, page)),
				chromedp.WaitReady("body", chromedp.ByQuery),
				chromedp.Evaluate(writeExpr(webSettings[f].selector, settings[f]), &ok),
				chromedp.WaitReady("body", chromedp.ByQuery),
			)
			if err != nil {
				return fmt.Errorf("failed to write setting %s: %w", f, err)
			}
			if !ok {
				return fmt.Errorf("setting %s not found on page %s", f, page)
			}
		}
	}
	return nil
}

func (c *chromeClient) Close() error {
	c.cancel()
	return nil
}

// readExpr evaluates to a checkbox state, an input value or null
func readExpr(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el) return null;
	return el.type === "checkbox" ? el.checked : el.value;
})()`, selector)
}

// writeExpr sets an input and submits its form, evaluating to false when
// the input is missing
func writeExpr(selector string, value any) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el) return false;
	const v = %s;
	if (el.type === "checkbox") { el.checked = v === true; } else { el.value = String(v); }
	el.form.requestSubmit();
	return true;
})()`, selector, jsLiteral(value))
}

func jsLiteral(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%q", fmt.Sprint(x))
	}
}
