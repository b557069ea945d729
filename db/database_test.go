package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wgoossens/trackside/db"
	"github.com/wgoossens/trackside/model"

	_ "modernc.org/sqlite"
)

func testRepo(t *testing.T) db.Repo {
	repo, err := db.NewRepo(filepath.Join(t.TempDir(), "test.db"))
	assert.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func TestEventRoundtrip(t *testing.T) {
	repo := testRepo(t)

	event := model.Event{
		Id:             "e1",
		Title:          "Memorial Van Damme",
		Location:       "Brussel",
		RawDate:        "2025-09-05",
		Date:           time.Date(2025, time.September, 5, 0, 0, 0, 0, time.UTC),
		DateValid:      true,
		Type:           model.COMPETITION_TYPE_TRACK,
		OrganizingClub: "Golden League vzw",
		Disciplines:    []string{"100m", "Ver"},
		UpdatedAt:      time.Date(2025, time.August, 29, 10, 0, 0, 0, time.UTC),
	}
	assert.NoError(t, repo.UpsertEvent(&event))

	got, err := repo.GetAllEvents()
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "Memorial Van Damme", got[0].Title)
	assert.Equal(t, []string{"100m", "Ver"}, got[0].Disciplines)
	assert.True(t, got[0].DateValid)
	assert.True(t, got[0].Date.Equal(event.Date))
}

func TestUpsertEventOverwrites(t *testing.T) {
	repo := testRepo(t)

	event := model.Event{Id: "e1", Title: "Old", Disciplines: []string{}, UpdatedAt: time.Now()}
	assert.NoError(t, repo.UpsertEvent(&event))

	event.Title = "New"
	event.Disciplines = []string{"100m"}
	assert.NoError(t, repo.UpsertEvent(&event))

	got, err := repo.GetAllEvents()
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "New", got[0].Title)
	assert.Equal(t, []string{"100m"}, got[0].Disciplines)
}

func TestUpsertNilEvent(t *testing.T) {
	repo := testRepo(t)
	assert.Error(t, repo.UpsertEvent(nil))
}

func TestEventWithoutDate(t *testing.T) {
	repo := testRepo(t)

	event := model.Event{Id: "e1", Title: "Datumloos", RawDate: "tbd", Disciplines: []string{}, UpdatedAt: time.Now()}
	assert.NoError(t, repo.UpsertEvent(&event))

	got, err := repo.GetAllEvents()
	assert.NoError(t, err)
	assert.False(t, got[0].DateValid)
	assert.Equal(t, "tbd", got[0].RawDate)
}

func TestReplaceSubscriptions(t *testing.T) {
	repo := testRepo(t)

	first := []model.Subscription{
		{EventId: "e1", Disciplines: []string{"100m"}, ChestNumber: "417", Categories: []string{"All"}, SubscribedAt: time.Now()},
		{EventId: "e2", Disciplines: []string{"Marathon"}, Categories: []string{"Senior"}, SubscribedAt: time.Now()},
	}
	assert.NoError(t, repo.ReplaceSubscriptions(first))

	got, err := repo.GetSubscriptions()
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	// The replacement is total, not a merge.
	second := []model.Subscription{
		{EventId: "e3", Disciplines: []string{"Ver"}, Categories: []string{"All"}, SubscribedAt: time.Now()},
	}
	assert.NoError(t, repo.ReplaceSubscriptions(second))

	got, err = repo.GetSubscriptions()
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "e3", got[0].EventId)
	assert.Equal(t, []string{"Ver"}, got[0].Disciplines)
}

func TestReplaceSubscriptionsWithEmpty(t *testing.T) {
	repo := testRepo(t)

	assert.NoError(t, repo.ReplaceSubscriptions([]model.Subscription{
		{EventId: "e1", Disciplines: []string{}, Categories: []string{}, SubscribedAt: time.Now()},
	}))
	assert.NoError(t, repo.ReplaceSubscriptions(nil))

	got, err := repo.GetSubscriptions()
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestProfileRoundtrip(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.GetProfile()
	assert.NoError(t, err)
	assert.Nil(t, got)

	profile := model.Profile{
		Id:           "p1",
		Name:         "Wim",
		ChestNumbers: map[string]string{"2024": "10", "2025": "32"},
		FaceConsent:  true,
	}
	assert.NoError(t, repo.SaveProfile(&profile))

	got, err = repo.GetProfile()
	assert.NoError(t, err)
	assert.Equal(t, "Wim", got.Name)
	assert.Equal(t, "32", got.ChestNumbers["2025"])
	assert.True(t, got.FaceConsent)

	profile.Name = "Wim G."
	assert.NoError(t, repo.SaveProfile(&profile))
	got, _ = repo.GetProfile()
	assert.Equal(t, "Wim G.", got.Name)
}
