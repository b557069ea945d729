package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wgoossens/trackside/model"
)

type Repo struct {
	db *sql.DB
}

func NewRepo(path string) (Repo, error) {
	db, err := initDB(path)
	if err != nil {
		return Repo{}, err
	}
	return Repo{db: db}, nil
}

func initDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	createEventsTable := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		location TEXT NOT NULL,
		raw_date TEXT NOT NULL,
		date DATETIME,
		date_valid BOOLEAN NOT NULL,
		type TEXT NOT NULL,
		organizing_club TEXT NOT NULL,
		thumbnail TEXT NOT NULL,
		disciplines TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createEventsTable); err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	createSubscriptionsTable := `
	CREATE TABLE IF NOT EXISTS subscriptions (
		event_id TEXT PRIMARY KEY,
		disciplines TEXT NOT NULL,
		chest_number TEXT NOT NULL,
		categories TEXT NOT NULL,
		subscribed_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createSubscriptionsTable); err != nil {
		return nil, fmt.Errorf("failed to create subscriptions table: %w", err)
	}

	createProfileTable := `
	CREATE TABLE IF NOT EXISTS profile (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		chest_numbers TEXT NOT NULL,
		face_consent BOOLEAN NOT NULL
	);`

	if _, err := db.Exec(createProfileTable); err != nil {
		return nil, fmt.Errorf("failed to create profile table: %w", err)
	}

	return db, nil
}

func (r Repo) Close() {
	r.db.Close()
}

func (r Repo) UpsertEvent(event *model.Event) error {
	if event == nil {
		return fmt.Errorf("Empty event cannot be saved")
	}
	disciplines, err := json.Marshal(event.Disciplines)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO events (id, title, location, raw_date, date, date_valid, type, organizing_club, thumbnail, disciplines, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		title=excluded.title,
    	location=excluded.location,
     	raw_date=excluded.raw_date,
      	date=excluded.date,
       	date_valid=excluded.date_valid,
        type=excluded.type,
        organizing_club=excluded.organizing_club,
        thumbnail=excluded.thumbnail,
        disciplines=excluded.disciplines,
       	updated_at=excluded.updated_at`,
		event.Id, event.Title, event.Location, event.RawDate, event.Date, event.DateValid,
		event.Type, event.OrganizingClub, event.Thumbnail, string(disciplines), event.UpdatedAt)
	return err
}

func (r Repo) GetAllEvents() ([]model.Event, error) {

	rows, err := r.db.Query(`
        SELECT id, title, location, raw_date, date, date_valid, type, organizing_club, thumbnail, disciplines, updated_at
        FROM events
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var date sql.NullTime
		var disciplinesJson string

		err := rows.Scan(&e.Id, &e.Title, &e.Location, &e.RawDate, &date, &e.DateValid,
			&e.Type, &e.OrganizingClub, &e.Thumbnail, &disciplinesJson, &e.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if date.Valid {
			e.Date = date.Time
		}
		if err := json.Unmarshal([]byte(disciplinesJson), &e.Disciplines); err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// ReplaceSubscriptions swaps the whole snapshot in one transaction. The
// store never merges partially, so neither does the table.
func (r Repo) ReplaceSubscriptions(subs []model.Subscription) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subscriptions`); err != nil {
		return err
	}
	for _, s := range subs {
		disciplines, err := json.Marshal(s.Disciplines)
		if err != nil {
			return err
		}
		categories, err := json.Marshal(s.Categories)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO subscriptions (event_id, disciplines, chest_number, categories, subscribed_at)
			VALUES(?, ?, ?, ?, ?)`,
			s.EventId, string(disciplines), s.ChestNumber, string(categories), s.SubscribedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) GetSubscriptions() ([]model.Subscription, error) {
	rows, err := r.db.Query(`
        SELECT event_id, disciplines, chest_number, categories, subscribed_at
        FROM subscriptions
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var disciplinesJson string
		var categoriesJson string

		err := rows.Scan(&s.EventId, &disciplinesJson, &s.ChestNumber, &categoriesJson, &s.SubscribedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(disciplinesJson), &s.Disciplines); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(categoriesJson), &s.Categories); err != nil {
			return nil, err
		}

		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r Repo) SaveProfile(profile *model.Profile) error {
	if profile == nil {
		return fmt.Errorf("Empty profile cannot be saved")
	}
	chestNumbers, err := json.Marshal(profile.ChestNumbers)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO profile (id, name, chest_numbers, face_consent)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		name=excluded.name,
    	chest_numbers=excluded.chest_numbers,
     	face_consent=excluded.face_consent`,
		profile.Id, profile.Name, string(chestNumbers), profile.FaceConsent)
	return err
}

// GetProfile returns nil without error when no profile is cached yet.
func (r Repo) GetProfile() (*model.Profile, error) {
	row := r.db.QueryRow(`SELECT id, name, chest_numbers, face_consent FROM profile LIMIT 1`)

	var p model.Profile
	var chestNumbersJson string
	err := row.Scan(&p.Id, &p.Name, &chestNumbersJson, &p.FaceConsent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(chestNumbersJson), &p.ChestNumbers); err != nil {
		return nil, err
	}
	return &p, nil
}
