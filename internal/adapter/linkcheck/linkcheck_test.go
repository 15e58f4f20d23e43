package linkcheck

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coursevault/coursevault/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRef(t *testing.T) {
	cases := []struct {
		link string
		want string
		ok   bool
	}{
		{"https://drive.google.com/drive/folders/1Kb7AcEmVZDLg5lgV6pHJQ8lE40sJMIL0", "1Kb7AcEmVZDLg5lgV6pHJQ8lE40sJMIL0", true},
		{"https://drive.google.com/file/d/abcdefgh1234/view", "abcdefgh1234", true},
		{"https://drive.google.com/open?id=abcdefgh1234", "abcdefgh1234", true},
		{"1Kb7AcEmVZDLg5lgV6pHJQ8lE40sJMIL0", "1Kb7AcEmVZDLg5lgV6pHJQ8lE40sJMIL0", true},
		{"https://example.com/nothing-here", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		ref, ok := ExtractRef(tc.link)
		assert.Equal(t, tc.ok, ok, tc.link)
		assert.Equal(t, tc.want, ref, tc.link)
	}
}

func TestCheckVerdicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/folders/okfolder0123456789":
			w.WriteHeader(http.StatusOK)
		case "/folders/gonefolder123456789":
			w.WriteHeader(http.StatusNotFound)
		case "/folders/privatefolder1234567":
			http.Redirect(w, r, "/ServiceLogin", http.StatusFound)
		case "/ServiceLogin":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := NewWithClient(srv.Client(), srv.URL+"/folders/%s", srv.URL+"/file/%s", 4, slog.Default())

	links := []string{
		"https://drive.google.com/drive/folders/okfolder0123456789",
		"https://drive.google.com/drive/folders/gonefolder123456789",
		"https://drive.google.com/drive/folders/privatefolder1234567",
		"https://drive.google.com/drive/folders/weirdfolder12345678",
		"not a drive link",
	}

	got := c.Check(context.Background(), links)
	require.Len(t, got, 5)

	assert.Equal(t, entity.RemoteAvailable, got[links[0]])
	assert.Equal(t, entity.RemoteMissing, got[links[1]])
	assert.Equal(t, entity.RemoteMissing, got[links[2]])
	assert.Equal(t, entity.RemoteBroken, got[links[3]])
	assert.Equal(t, entity.RemoteBroken, got[links[4]])
}

func TestCheckDeduplicatesLinks(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewWithClient(srv.Client(), srv.URL+"/folders/%s", srv.URL+"/file/%s", 1, slog.Default())

	link := "https://drive.google.com/drive/folders/sharedfolder1234567"
	got := c.Check(context.Background(), []string{link, link, link})

	assert.Len(t, got, 1)
	assert.Equal(t, 1, hits)
}
