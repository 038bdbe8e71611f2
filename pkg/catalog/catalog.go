// Package catalog reads the public list of streamable games.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
)

const requestTimeout = 15 * time.Second

type Game struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Store     string   `json:"store,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Status    string   `json:"status,omitempty"`
	SteamURL  string   `json:"steamUrl,omitempty"`
}

func (g Game) Available() bool { return g.Status == "" || g.Status == "AVAILABLE" }

type Catalog struct {
	url  string
	http *http.Client
	log  *logger.Logger

	mu    sync.Mutex
	games []Game
}

func New(conf config.Catalog, client *http.Client, log *logger.Logger) *Catalog {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Catalog{url: conf.URL, http: client, log: log.Module("catalog")}
}

// Games returns the catalog. Best-effort, an empty list on errors.
// The first successful read is cached.
func (c *Catalog) Games(ctx context.Context) []Game {
	c.mu.Lock()
	cached := c.games
	c.mu.Unlock()
	if cached != nil {
		return cached
	}

	games, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Game catalog is not available")
		return []Game{}
	}
	c.mu.Lock()
	c.games = games
	c.mu.Unlock()
	c.log.Debug().Msgf("Catalog has %v games", len(games))
	return games
}

// Search finds available games with the title containing the query.
func (c *Catalog) Search(ctx context.Context, query string) []Game {
	query = strings.ToLower(strings.TrimSpace(query))
	var found []Game
	for _, g := range c.Games(ctx) {
		if g.Available() && strings.Contains(strings.ToLower(g.Title), query) {
			found = append(found, g)
		}
	}
	return found
}

func (c *Catalog) fetch(ctx context.Context) ([]Game, error) {
	if c.url == "" {
		return nil, fmt.Errorf("no catalog address")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("catalog: status %v", resp.StatusCode)
	}
	games := []Game{}
	if err = json.NewDecoder(resp.Body).Decode(&games); err != nil {
		return nil, err
	}
	return games, nil
}
