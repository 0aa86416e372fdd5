package warming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/eugener/tiercache/internal/keys"
)

// maxResponseBody caps backend responses read by HTTP fetchers.
const maxResponseBody = 32 << 20

// Source describes a backend JSON endpoint to warm from.
type Source struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	URL       string `yaml:"url"`
	ItemsPath string `yaml:"items_path"` // gjson path to the item array; empty = document root
	IDPath    string `yaml:"id_path"`    // gjson path to the id within an item; default "id"
	ListKey   string `yaml:"list_key"`   // key for the whole list; empty = not stored
	Limit     int    `yaml:"limit"`      // 0 = all items
}

// HTTPFetcher returns a Fetcher that GETs src.URL and stores each item under
// "item:<id>", plus the whole array under src.ListKey.
func HTTPFetcher(client *http.Client, src Source) Fetcher {
	idPath := src.IDPath
	if idPath == "" {
		idPath = "id"
	}
	return Fetcher{
		Name:      src.Name,
		Namespace: src.Namespace,
		Fetch: func(ctx context.Context) ([]Item, error) {
			body, err := get(ctx, client, src.URL)
			if err != nil {
				return nil, err
			}
			return extract(body, src.ItemsPath, idPath, src.ListKey, src.Limit)
		},
	}
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func extract(body []byte, itemsPath, idPath, listKey string, limit int) ([]Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	list := gjson.ParseBytes(body)
	if itemsPath != "" {
		list = list.Get(itemsPath)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("path %q is not an array", itemsPath)
	}

	var items []Item
	var kept []json.RawMessage
	list.ForEach(func(_, v gjson.Result) bool {
		if limit > 0 && len(kept) >= limit {
			return false
		}
		kept = append(kept, json.RawMessage(v.Raw))
		if id := v.Get(idPath); id.Exists() && id.String() != "" {
			items = append(items, Item{Key: keys.Generate("item", id.String()), Value: json.RawMessage(v.Raw)})
		}
		return true
	})
	if listKey != "" {
		if kept == nil {
			kept = []json.RawMessage{}
		}
		items = append(items, Item{Key: listKey, Value: kept})
	}
	return items, nil
}
