// Package invalidation maps application events onto cache invalidations and
// keeps a log of recent invalidations for analytics.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/cache"
)

// Event is an application change that may make cached data stale.
type Event struct {
	ID        string    `json:"event_id,omitempty"`
	Name      string    `json:"name"`
	EntityID  string    `json:"id,omitempty"`
	Email     string    `json:"email,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	PluginID  string    `json:"pluginId,omitempty"`
	At        time.Time `json:"at,omitzero"`
}

// Action removes cached data in one namespace. Exactly one of Delete or
// Pattern is set. Delete is a key template whose placeholders ({id},
// {email}, {userId}, {sessionId}, {pluginId}) are filled from the event; the
// action is skipped when a referenced field is empty.
type Action struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Delete    string `yaml:"delete" json:"delete,omitempty"`
	Pattern   string `yaml:"pattern" json:"pattern,omitempty"`
}

// Rules maps event names to the actions they trigger.
type Rules map[string][]Action

func pattern(ns, p string) Action { return Action{Namespace: ns, Pattern: p} }
func del(ns, tmpl string) Action  { return Action{Namespace: ns, Delete: tmpl} }

// DefaultRules returns the built-in event rules. Keys are namespace-relative,
// so "*" clears a whole namespace and "list:*" its list entries.
func DefaultRules() Rules {
	return Rules{
		"content.create":  {pattern("content", "*"), pattern("api", "*")},
		"content.update":  {del("content", "item:{id}"), pattern("content", "list:*"), pattern("api", "*")},
		"content.delete":  {del("content", "item:{id}"), pattern("content", "*"), pattern("api", "*")},
		"content.publish": {pattern("content", "*"), pattern("api", "*")},

		"user.update": {del("user", "id:{id}"), del("user", "email:{email}")},
		"user.delete": {del("user", "id:{id}"), del("user", "email:{email}")},
		"auth.login":  {del("user", "id:{userId}")},
		"auth.logout": {del("session", "session:{sessionId}")},

		"config.update":     {pattern("config", "*")},
		"plugin.activate":   {pattern("config", "*"), pattern("plugin", "*")},
		"plugin.deactivate": {pattern("config", "*"), pattern("plugin", "*")},
		"plugin.update":     {pattern("plugin", "*")},

		"media.upload": {pattern("media", "*")},
		"media.update": {del("media", "item:{id}"), pattern("media", "list:*")},
		"media.delete": {del("media", "item:{id}"), pattern("media", "list:*")},

		"collection.create": {pattern("collection", "*")},
		"collection.update": {del("collection", "item:{id}"), pattern("collection", "*"), pattern("api", "*")},
		"collection.delete": {pattern("collection", "*")},
	}
}

// Merge returns a copy of r with extra's actions appended per event.
func (r Rules) Merge(extra Rules) Rules {
	out := make(Rules, len(r)+len(extra))
	for name, acts := range r {
		out[name] = append([]Action(nil), acts...)
	}
	for name, acts := range extra {
		out[name] = append(out[name], acts...)
	}
	return out
}

// Events returns the event names with rules, sorted.
func (r Rules) Events() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Apply runs the actions for ev against reg and returns how many keys were
// removed. Namespaces not yet registered are created from the default
// configs; unknown namespaces are skipped. Unknown events are a no-op.
func (r Rules) Apply(ctx context.Context, reg *cache.Registry, ev Event) (int, error) {
	var total int
	var errs []error
	for _, a := range r[ev.Name] {
		svc, ok := service(reg, a.Namespace)
		if !ok {
			slog.LogAttrs(ctx, slog.LevelWarn, "invalidation rule for unknown namespace",
				slog.String("event", ev.Name),
				slog.String("namespace", a.Namespace),
			)
			continue
		}

		if a.Pattern != "" {
			n, err := svc.Invalidate(ctx, a.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalidate %s/%s: %w", ev.Name, a.Namespace, a.Pattern, err))
				continue
			}
			total += n
			continue
		}

		key, ok := expand(a.Delete, ev)
		if !ok {
			continue
		}
		if err := svc.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: delete %s/%s: %w", ev.Name, a.Namespace, key, err))
			continue
		}
		total++
	}

	slog.LogAttrs(ctx, slog.LevelDebug, "event applied",
		slog.String("event", ev.Name),
		slog.String("id", ev.EntityID),
		slog.Int("removed", total),
	)
	return total, errors.Join(errs...)
}

func service(reg *cache.Registry, ns string) (*cache.Service, bool) {
	if svc, ok := reg.Lookup(ns); ok {
		return svc, true
	}
	cfg, ok := tiercache.DefaultConfigs[ns]
	if !ok {
		return nil, false
	}
	svc, err := reg.Service(cfg)
	return svc, err == nil
}

// expand fills the placeholders of tmpl from ev. ok is false when a
// referenced field is empty.
func expand(tmpl string, ev Event) (string, bool) {
	fields := []struct{ placeholder, value string }{
		{"{id}", ev.EntityID},
		{"{email}", ev.Email},
		{"{userId}", ev.UserID},
		{"{sessionId}", ev.SessionID},
		{"{pluginId}", ev.PluginID},
	}
	out := tmpl
	for _, f := range fields {
		if !strings.Contains(out, f.placeholder) {
			continue
		}
		if f.value == "" {
			return "", false
		}
		out = strings.ReplaceAll(out, f.placeholder, f.value)
	}
	return out, out != ""
}
