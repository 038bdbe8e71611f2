package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

type serviceUrls struct {
	GfnServiceInfo struct {
		DefaultProvider     string `json:"defaultProvider"`
		GfnServiceEndpoints []struct {
			IdpID                    string `json:"idpId"`
			LoginProviderCode        string `json:"loginProviderCode"`
			LoginProviderDisplayName string `json:"loginProviderDisplayName"`
			StreamingServiceURL      string `json:"streamingServiceUrl"`
			LoginProviderPriority    int    `json:"loginProviderPriority"`
		} `json:"gfnServiceEndpoints"`
	} `json:"gfnServiceInfo"`
}

// Providers returns the login providers ordered by priority.
// It never fails, on any error the default provider is returned.
func (a *Authority) Providers(ctx context.Context) []Provider {
	a.mu.Lock()
	cached := a.providers
	a.mu.Unlock()
	if len(cached) > 0 {
		return cached
	}

	list, err := a.fetchProviders(ctx)
	if err != nil || len(list) == 0 {
		a.log.Warn().Err(err).Msg("Provider list is not available, using the default")
		return []Provider{a.defaultProvider()}
	}
	a.mu.Lock()
	a.providers = list
	a.mu.Unlock()
	return list
}

func (a *Authority) fetchProviders(ctx context.Context) ([]Provider, error) {
	if a.conf.ProvidersURL == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.conf.ProvidersURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError("providers", resp.StatusCode, body)
	}
	var urls serviceUrls
	if err = json.Unmarshal(body, &urls); err != nil {
		return nil, err
	}
	var list []Provider
	for _, e := range urls.GfnServiceInfo.GfnServiceEndpoints {
		if e.IdpID == "" || e.StreamingServiceURL == "" {
			continue
		}
		list = append(list, Provider{
			IdpID:            e.IdpID,
			Code:             e.LoginProviderCode,
			DisplayName:      e.LoginProviderDisplayName,
			StreamingBaseURL: e.StreamingServiceURL,
			Priority:         e.LoginProviderPriority,
		}.normalize())
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	return list, nil
}

func (a *Authority) defaultProvider() Provider {
	p := a.conf.DefaultProvider
	return Provider{
		IdpID:            p.IdpID,
		Code:             p.Code,
		DisplayName:      p.DisplayName,
		StreamingBaseURL: p.StreamingBaseURL,
	}.normalize()
}

// resolveProvider picks a provider by its idp id or code.
// The empty selector means the first one.
func (a *Authority) resolveProvider(ctx context.Context, selector string) (Provider, error) {
	list := a.Providers(ctx)
	if selector == "" {
		return list[0], nil
	}
	for _, p := range list {
		if p.IdpID == selector || strings.EqualFold(p.Code, selector) {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("%w: %v", ErrUnknownProvider, selector)
}
