package converter

import (
	"sort"
	"sync"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// StrategyKind names one of the transformation strategies.
type StrategyKind string

const (
	StrategyRaster   StrategyKind = "raster-image"
	StrategyPage     StrategyKind = "image-to-page"
	StrategyMedia    StrategyKind = "timed-media"
	StrategyDocument StrategyKind = "document"
)

// Route maps a source family and a target kind to a strategy. It does not
// consult the compatibility table; callers that accept user input should use
// Router.Select instead.
func Route(mt formats.MediaType, target string) (StrategyKind, error) {
	family := formats.FamilyOf(mt)
	kind := formats.KindOf(target)
	switch family {
	case formats.FamilyRaster, formats.FamilyVector:
		if kind == formats.KindPage {
			return StrategyPage, nil
		}
		return StrategyRaster, nil
	case formats.FamilyVideo, formats.FamilyAudio:
		return StrategyMedia, nil
	case formats.FamilyPage, formats.FamilyWord, formats.FamilyMarkdown, formats.FamilyText:
		return StrategyDocument, nil
	case formats.FamilyUnknown:
	}
	return "", newError(KindUnsupportedConversion, "route", nil, "%s to %s", mt, target)
}

// Router holds the registered strategies.
type Router struct {
	mu         sync.RWMutex
	strategies map[StrategyKind]Strategy
}

// NewRouter creates a router with the given strategies registered.
func NewRouter(strategies ...Strategy) *Router {
	r := &Router{strategies: make(map[StrategyKind]Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a strategy.
func (r *Router) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Kind()] = s
}

// Get retrieves a strategy by kind.
func (r *Router) Get(kind StrategyKind) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[kind]
	return s, ok
}

// Select validates the pair against the compatibility table and returns the
// strategy that handles it.
func (r *Router) Select(mt formats.MediaType, target string) (Strategy, error) {
	if !formats.Supported(mt) {
		return nil, newError(KindUnsupportedType, "route", nil, "%q", mt)
	}
	target = formats.NormalizeExt(target)
	if !formats.Allows(mt, target) {
		return nil, newError(KindUnsupportedConversion, "route", nil, "%s to %q", mt, target)
	}
	kind, err := Route(mt, target)
	if err != nil {
		return nil, err
	}
	s, ok := r.Get(kind)
	if !ok {
		return nil, newError(KindEngineUnavailable, "route", nil, "no %s strategy registered", kind)
	}
	return s, nil
}

// Info lists every registered strategy with the table rows it serves.
func (r *Router) Info() []StrategyInfo {
	byKind := map[StrategyKind]*StrategyInfo{}
	seenFamily := map[string]bool{}
	for _, e := range formats.Table() {
		for _, target := range e.Targets {
			kind, err := Route(e.Source, target)
			if err != nil {
				continue
			}
			info, ok := byKind[kind]
			if !ok {
				info = &StrategyInfo{Name: string(kind)}
				byKind[kind] = info
			}
			if key := string(kind) + "/" + e.Family; !seenFamily[key] {
				seenFamily[key] = true
				info.Families = append(info.Families, e.Family)
			}
			info.Targets = appendUnique(info.Targets, target)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StrategyInfo, 0, len(r.strategies))
	for kind := range r.strategies {
		if info, ok := byKind[kind]; ok {
			out = append(out, *info)
		} else {
			out = append(out, StrategyInfo{Name: string(kind)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func (k StrategyKind) String() string { return string(k) }
