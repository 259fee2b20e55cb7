package fakebackend

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// tree is the data-store JSON tree. Writing nil removes a node and any
// parents left empty.
type tree struct {
	mu   sync.Mutex
	root any
}

func (t *tree) get(path []string) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.root
	for _, seg := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return deepCopy(node)
}

func (t *tree) set(path []string, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = setIn(t.root, path, deepCopy(v))
}

func (t *tree) update(path []string, children map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range children {
		t.root = setIn(t.root, append(append([]string(nil), path...), splitPath(k)...), deepCopy(v))
	}
}

// deepCopy detaches v from the tree so callers can encode it unlocked.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, c := range x {
			out[k] = deepCopy(c)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, c := range x {
			out[i] = deepCopy(c)
		}
		return out
	default:
		return v
	}
}

func setIn(node any, path []string, v any) any {
	if len(path) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	child := setIn(m[path[0]], path[1:], v)
	if child == nil {
		delete(m, path[0])
	} else {
		m[path[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// database handles /db/<path>.json. Every request needs a valid id token in
// the auth query parameter.
func (s *Server) database(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	if !strings.HasSuffix(raw, ".json") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "404 Not Found"})
		return
	}
	path := splitPath(strings.TrimSuffix(raw, ".json"))

	claims, err := s.verifyToken(r.URL.Query().Get("auth"))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Permission denied"})
		return
	}
	uid, _ := claims["user_id"].(string)
	logger := log.Ctx(r.Context()).With().
		Str("uid", uid).
		Str("path", "/"+strings.Join(path, "/")).
		Logger()

	var body any
	if r.Method == http.MethodPut || r.Method == http.MethodPatch || r.Method == http.MethodPost {
		data, err := io.ReadAll(r.Body)
		if err != nil || json.Unmarshal(data, &body) != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid data; couldn't parse JSON object."})
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		value := s.tree.get(path)
		if r.URL.Query().Get("shallow") == "true" {
			value = shallow(value)
		}
		writeJSON(w, http.StatusOK, value)
	case http.MethodPut:
		s.tree.set(path, body)
		logger.Debug().Msg("set")
		writeJSON(w, http.StatusOK, body)
	case http.MethodPatch:
		children, ok := body.(map[string]any)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid data; couldn't parse JSON object."})
			return
		}
		s.tree.update(path, children)
		logger.Debug().Int("children", len(children)).Msg("update")
		writeJSON(w, http.StatusOK, children)
	case http.MethodPost:
		key := uuid.Must(uuid.NewV7()).String()
		s.tree.set(append(path, key), body)
		logger.Debug().Str("key", key).Msg("push")
		writeJSON(w, http.StatusOK, map[string]string{"name": key})
	case http.MethodDelete:
		s.tree.set(path, nil)
		logger.Debug().Msg("remove")
		writeJSON(w, http.StatusOK, nil)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func shallow(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
