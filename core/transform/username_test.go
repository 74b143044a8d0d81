package transform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsernameToWebsite(t *testing.T) {
	var mu sync.Mutex
	var userAgents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		userAgents = append(userAgents, r.UserAgent())
		mu.Unlock()
		if r.URL.Path == "/users/alice" {
			_, _ = w.Write([]byte("profile"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	username := model.MustNewEntity(model.EntityTypeUsername, map[string]any{"username": "alice"})

	t.Run("Existing profiles become websites", func(t *testing.T) {
		tr := NewUsernameToWebsite(server.Client(), "pano-test", 1000,
			ProfileSite{Name: "Users", URLTemplate: server.URL + "/users/%s"},
			ProfileSite{Name: "Members", URLTemplate: server.URL + "/members/%s"},
		)

		entities, err := tr.Run(context.Background(), username, nil)
		require.NoError(t, err, "Expected run to succeed")
		require.Len(t, entities, 1, "Expected only the existing profile")
		assert.Equal(t, server.URL+"/users/alice", entities[0].String("url"), "Expected profile url")
		assert.Equal(t, "127.0.0.1", entities[0].String("domain"), "Expected host as domain")
		mu.Lock()
		assert.Contains(t, userAgents, "pano-test", "Expected configured user agent")
		mu.Unlock()
	})

	t.Run("Unreachable sites give a partial result", func(t *testing.T) {
		tr := NewUsernameToWebsite(server.Client(), "pano-test", 1000,
			ProfileSite{Name: "Users", URLTemplate: server.URL + "/users/%s"},
			ProfileSite{Name: "Offline", URLTemplate: "http://127.0.0.1:1/%s"},
		)

		entities, err := tr.Run(context.Background(), username, nil)
		assert.Len(t, entities, 1, "Expected the reachable profile")
		assert.ErrorContains(t, err, "Offline", "Expected error of the unreachable site")
	})

	t.Run("Empty username", func(t *testing.T) {
		tr := NewUsernameToWebsite(server.Client(), "pano-test", 1000)
		entities, err := tr.Run(context.Background(), model.MustNewEntity(model.EntityTypeUsername, nil), nil)
		require.NoError(t, err, "Expected run to succeed")
		assert.Empty(t, entities, "Expected no websites")
	})
}
