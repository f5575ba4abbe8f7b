package router

import (
	"testing"

	"github.com/bkonkle/taskdeck/internal/roster"
	"github.com/stretchr/testify/require"
)

func testRoster(t *testing.T) *roster.Roster {
	t.Helper()
	r, err := roster.New([]roster.Worker{
		{ID: "id-orc", Nickname: "orc", Orchestrator: true},
		{ID: "id-bob", Nickname: "bob"},
		{ID: "id-sue", Nickname: "sue"},
		{ID: "id-rex", Nickname: "Rex"},
	}, "")
	require.NoError(t, err)
	return r
}

func TestRoute(t *testing.T) {
	r := testRoster(t)

	tests := []struct {
		name       string
		text       string
		wantTarget string
		wantDirect bool
	}{
		{"single mention", "@bob research quantum computing", "id-bob", true},
		{"multiple mentions", "@bob @sue merge their findings", "id-orc", false},
		{"greeting heuristic", "hello rex, what's new", "id-rex", true},
		{"no mention", "do something useful", "id-orc", false},
		{"repeated mention counts once", "@bob then @BOB again", "id-bob", true},
		{"unknown mention ignored", "@ghost and @sue", "id-sue", true},
		{"email is not a mention", "mail bob@sue.com", "id-orc", false},
		{"greeting plus different mention", "hey bob, ask @sue", "id-orc", false},
		{"greeting without roster match", "hi there", "id-orc", false},
		{"greeting not at start", "well hello rex", "id-orc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Route(tt.text, r)
			require.Equal(t, tt.wantTarget, d.Target.ID)
			require.Equal(t, tt.wantDirect, d.Direct)
		})
	}
}

func TestMentions(t *testing.T) {
	require.Equal(t, []string{"bob", "sue-2"}, Mentions("@bob, (@sue-2) x@y"))
	require.Empty(t, Mentions("nothing here"))
	require.Equal(t, []string{"josé", "zoë"}, Mentions("@josé and @zoë: go"))
	require.Equal(t, []string{"bob"}, Mentions("@bob@sue"))
	require.Equal(t, []string{"sue"}, Mentions("josé@x.org,@sue"))
}

func TestRoute_NonASCIINickname(t *testing.T) {
	r, err := roster.New([]roster.Worker{
		{ID: "id-orc", Nickname: "orc", Orchestrator: true},
		{ID: "id-jose", Nickname: "josé"},
	}, "")
	require.NoError(t, err)

	d := Route("@josé do it", r)
	require.True(t, d.Direct)
	require.Equal(t, "id-jose", d.Target.ID)

	d = Route("hola, hello josé", r)
	require.Equal(t, "id-orc", d.Target.ID)

	d = Route("hey josé, look at this", r)
	require.Equal(t, "id-jose", d.Target.ID)
}

func TestGreeting(t *testing.T) {
	name, ok := Greeting("  Howdy @Rex!")
	require.True(t, ok)
	require.Equal(t, "Rex", name)

	_, ok = Greeting("hello")
	require.False(t, ok)
}

func TestDecision_Describe(t *testing.T) {
	r := testRoster(t)

	require.Equal(t, "→ bob", Route("@bob go", r).Describe())
	require.Contains(t, Route("@bob @sue go", r).Describe(), "for bob, sue")
	require.Contains(t, Route("go", r).Describe(), "no worker named")
}
