package domain

type Pharmacy struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Email     string  `db:"email" json:"email"`
	Phone     string  `db:"phone" json:"phone"`
	Address   string  `db:"address" json:"address"`
	Hours     string  `db:"hours" json:"hours"`
	AllNight  bool    `db:"all_night" json:"all_night"`
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	CreatorID *int64  `db:"creator_id" json:"creator_id,omitempty"`
	CreatedAt string  `db:"created_at" json:"created_at"`
}
