// Package storetest builds a migrated in-memory SQLite store seeded with a small pharmacy
// chain, for use by package tests.
package storetest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pharmahub/m/domain"
	"pharmahub/m/internal/database"
	"pharmahub/m/internal/migrations"
)

// Password is the plain-text password of every seeded user.
const Password = "secret1234"

// Caller coordinates a few hundred metres from PharmacyTwo and several kilometres from PharmacyOne.
const (
	CallerLatitude  = 3.868078
	CallerLongitude = 11.461773
)

// Fixture exposes the seeded rows.
type Fixture struct {
	DB *sqlx.DB

	PharmacyOne domain.Pharmacy
	PharmacyTwo domain.Pharmacy

	Prescription domain.Category
	Antibiotic   domain.Category

	Doliprane  domain.CatalogEntry
	Penicillin domain.CatalogEntry

	// ListingOne: Doliprane at PharmacyOne, price 1000, amount 5.
	ListingOne domain.Listing
	// ListingTwo: Penicillin at PharmacyOne, price 1600, amount 50.
	ListingTwo domain.Listing
	// ListingFour: Penicillin at PharmacyTwo, price 1500, amount 20.
	ListingFour domain.Listing

	SystemAdmin   domain.User
	PharmacyAdmin domain.User
	Cashier       domain.User
	Customer      domain.User
}

// Open returns an empty migrated in-memory store closed at the end of the test.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect("sqlite", "file::memory:?_pragma=foreign_keys(1)", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Run(db))
	return db
}

// New returns a seeded store.
func New(t testing.TB) *Fixture {
	t.Helper()
	f := &Fixture{DB: Open(t)}

	hashed, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	f.SystemAdmin = f.insertUser(t, domain.User{Name: "Diallo Abdourahman", Email: "diallo@example.com", Role: domain.RoleSystemAdmin}, hashed)

	f.PharmacyOne = f.insertPharmacy(t, domain.Pharmacy{
		Name: "Pharmacie de Messa", Email: "messa@example.com", Phone: "677538950",
		Address: "Messa, Yaounde", Hours: "8:00 - 18:00", AllNight: true,
		Latitude: 3.872225, Longitude: 11.504342, CreatorID: &f.SystemAdmin.ID,
	})
	f.PharmacyTwo = f.insertPharmacy(t, domain.Pharmacy{
		Name: "Pharmacie du Centre", Email: "centre@example.com", Phone: "677000111",
		Address: "Centre, Yaounde", Hours: "8:00 - 20:00",
		Latitude: 3.866487, Longitude: 11.469657, CreatorID: &f.SystemAdmin.ID,
	})

	f.PharmacyAdmin = f.insertUser(t, domain.User{Name: "Eren Yeager", Email: "eren@example.com", Role: domain.RolePharmacyAdmin, PharmacyID: &f.PharmacyOne.ID, CreatorID: &f.SystemAdmin.ID}, hashed)
	f.Cashier = f.insertUser(t, domain.User{Name: "Armin Arlert", Email: "armin@example.com", Role: domain.RoleCashier, PharmacyID: &f.PharmacyOne.ID, CreatorID: &f.PharmacyAdmin.ID}, hashed)
	f.Customer = f.insertUser(t, domain.User{Name: "Mikasa Ackerman", Email: "mikasa@example.com", Role: domain.RoleCustomer}, hashed)

	f.Prescription = f.insertCategory(t, domain.Category{Name: "Prescription drugs", Description: "These are prescription drugs."})
	f.Antibiotic = f.insertCategory(t, domain.Category{Name: "Antibiotic drugs", Description: "These are antibiotic drugs."})

	image := "doliprane.png"
	f.Doliprane = f.insertCatalogEntry(t, domain.CatalogEntry{Name: "Doliprane 1000mg", Description: "Used to treat headaches", ReferencePrice: decimal.NewFromInt(1000), CategoryID: &f.Prescription.ID, Image: &image})
	f.Penicillin = f.insertCatalogEntry(t, domain.CatalogEntry{Name: "Penicillin", Description: "Antibiotic", ReferencePrice: decimal.NewFromInt(1500), CategoryID: &f.Antibiotic.ID})

	f.ListingOne = f.InsertListing(t, f.Doliprane.ID, f.PharmacyOne.ID, 1000, 5)
	f.ListingTwo = f.InsertListing(t, f.Penicillin.ID, f.PharmacyOne.ID, 1600, 50)
	f.ListingFour = f.InsertListing(t, f.Penicillin.ID, f.PharmacyTwo.ID, 1500, 20)

	return f
}

// InsertListing adds a listing and returns it.
func (f *Fixture) InsertListing(t testing.TB, catalogEntryID, pharmacyID int64, price, amount int64) domain.Listing {
	t.Helper()
	l := domain.Listing{CatalogEntryID: catalogEntryID, PharmacyID: pharmacyID, Price: decimal.NewFromInt(price), Amount: amount}
	err := f.DB.QueryRowx(`INSERT INTO listings (catalog_entry_id, pharmacy_id, price, amount) VALUES (?, ?, ?, ?) RETURNING id`,
		l.CatalogEntryID, l.PharmacyID, l.Price, l.Amount).Scan(&l.ID)
	require.NoError(t, err)
	return l
}

// Amount reads the current stock of a listing.
func (f *Fixture) Amount(t testing.TB, listingID int64) int64 {
	t.Helper()
	var amount int64
	require.NoError(t, f.DB.Get(&amount, `SELECT amount FROM listings WHERE id = ?`, listingID))
	return amount
}

// Count returns the number of rows in table.
func (f *Fixture) Count(t testing.TB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.DB.Get(&n, `SELECT COUNT(*) FROM `+table))
	return n
}

func (f *Fixture) insertUser(t testing.TB, u domain.User, hashed []byte) domain.User {
	t.Helper()
	err := f.DB.QueryRowx(`INSERT INTO users (name, email, password, role, pharmacy_id, creator_id) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		u.Name, u.Email, string(hashed), u.Role, u.PharmacyID, u.CreatorID).Scan(&u.ID)
	require.NoError(t, err)
	return u
}

func (f *Fixture) insertPharmacy(t testing.TB, p domain.Pharmacy) domain.Pharmacy {
	t.Helper()
	err := f.DB.QueryRowx(`INSERT INTO pharmacies (name, email, phone, address, hours, all_night, latitude, longitude, creator_id)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.Name, p.Email, p.Phone, p.Address, p.Hours, p.AllNight, p.Latitude, p.Longitude, p.CreatorID).Scan(&p.ID)
	require.NoError(t, err)
	return p
}

func (f *Fixture) insertCategory(t testing.TB, c domain.Category) domain.Category {
	t.Helper()
	err := f.DB.QueryRowx(`INSERT INTO categories (name, description) VALUES (?, ?) RETURNING id`, c.Name, c.Description).Scan(&c.ID)
	require.NoError(t, err)
	return c
}

func (f *Fixture) insertCatalogEntry(t testing.TB, e domain.CatalogEntry) domain.CatalogEntry {
	t.Helper()
	err := f.DB.QueryRowx(`INSERT INTO catalog_entries (name, description, reference_price, category_id, image) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		e.Name, e.Description, e.ReferencePrice, e.CategoryID, e.Image).Scan(&e.ID)
	require.NoError(t, err)
	return e
}
